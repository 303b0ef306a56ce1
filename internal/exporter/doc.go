// Package exporter writes the pipeline's output artefacts.
//
// CSVWriter is the single entry point:
//
//   - WritePredictions writes the output table in domain.OutputColumns order, with
//     missing coverage and coordinates as empty fields. ReadPredictions reads it back.
//   - WriteGeoJSON writes rows that have coordinates as a FeatureCollection of points.
//   - ConvertXLSX streams the active sheet of a workbook into a CSV file.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(logger)
//	if err := w.WritePredictions("data/output/predictions.csv", rows); err != nil {
//		return err
//	}
package exporter
