// Package dataprocessing turns a loosely formatted health service coverage table into
// canonical records and a numeric design matrix.
//
// # Architecture
//
// The package is organized into four steps:
//
// 1. Table: reads a CSV or XLSX file into string columns
// 2. Normalizer: canonicalizes subdivision names so spelling variants collapse to one key
// 3. Reconciler: maps input column names onto the canonical schema with defaults
// 4. Features: one-hot encodes categorical fields next to the numeric ones
//
// # Usage
//
//	table, err := dataprocessing.ReadTable("data.csv")
//	if err != nil {
//	    return err
//	}
//	records, err := dataprocessing.NewReconciler(logger).Reconcile(table)
//	if err != nil {
//	    return err
//	}
//	features := dataprocessing.BuildFeatures(records)
//
// # Data Flow
//
//	CSV/XLSX → Table → Reconciler → []domain.Record → BuildFeatures → FeatureSet
//
// Individual cells never fail a run. Unparsable values take the field default, only an
// empty table is reported as ErrEmptyDataset.
package dataprocessing
