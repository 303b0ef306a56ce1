// Package services implements the business logic behind the prediction API.
//
// PredictionService owns pipeline runs: it serialises them, replaces the input dataset
// on upload, imports each run's output table into the prediction store and answers
// filtered queries as GeoJSON points. HealthService reports liveness and readiness.
//
// Services take their collaborators as small interfaces (PipelineRunner,
// PredictionStore, Pinger) so handlers and tests can substitute them:
//
//	runner := pipeline.NewRunner(logger, tracer, metrics)
//	svc := services.NewPredictionService(cfg, runner, st, logger)
//	resp, err := svc.Run(ctx, api.RunRequest{Years: 5})
package services
