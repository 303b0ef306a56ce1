// Package files discovers dataset files on disk.
//
// The prediction service stores uploaded datasets in its upload directory; on startup the
// most recent one found there replaces the configured input so an upload survives a
// restart.
//
//	discovery := files.NewDiscovery("")
//	latest, ok, err := discovery.LatestDataset("data/uploads")
package files
