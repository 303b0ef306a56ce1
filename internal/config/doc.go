// Package config provides centralized configuration management for the forecast service
// and its commands.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A .env file in the working directory
//	3. config.yaml (or the file named by SEHATMAP_CONFIG_FILE)
//	4. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern SEHATMAP_<SECTION>_<KEY>:
//
//	SEHATMAP_SERVER_PORT=8080
//	SEHATMAP_PIPELINE_INPUT_PATH=data/input/dataset.csv
//	SEHATMAP_PIPELINE_YEARS=5
//	SEHATMAP_STORE_DB_PATH=data/predictions.db
//	SEHATMAP_LOGGING_LEVEL=debug
//
// The loaded struct is validated with go-playground/validator tags before use.
package config
