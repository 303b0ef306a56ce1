// Package shared holds helpers used across packages that belong to no single layer.
//
// The testutil subpackage provides log capture for asserting on structured log output
// and fixture writers for input datasets and geographic references.
//
//	logger, logs := testutil.NewTestLogger(t)
//	input := testutil.WriteDataset(t, filepath.Join(dir, "dataset.csv"), rows)
//	testutil.AssertLogContains(t, logs, slog.LevelWarn, "Skipping geographic enrichment")
package shared
