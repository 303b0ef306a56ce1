// Package http implements the HTTP handlers of the prediction API.
//
// Handlers stay thin: they parse the request, call the service and render the result.
// Every failure goes through errors.ErrorHandler so clients always receive RFC 7807
// problem details.
//
// Routes mounted by the application:
//
//	GET  /api/ml/geojson             raw geographic reference
//	GET  /api/ml/predictions         stored predictions as GeoJSON points (?tahun=&prioritas=)
//	GET  /api/ml/predictions/meta    distinct years and routes
//	POST /api/ml/run                 run the pipeline ({"years": n} optional)
//	POST /api/ml/dataset             upload a dataset (multipart field "dataset") and run
//	GET  /api/ml/runs/last           summary of the last successful run
//	GET  /healthz, /readyz, /version
//	GET  /metrics                    Prometheus scrape endpoint
package http
