package config

// Application constants
const (
	// Application Info
	AppName     = "SehatMap"
	AppVersion  = "1.0.0"
	ServiceName = "sehatmap"

	// EnvPrefix prefixes every environment variable, e.g. SEHATMAP_SERVER_PORT
	EnvPrefix  = "SEHATMAP"
	DotEnvFile = ".env"

	// Rate Limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Pipeline
	DefaultHorizon    = 10
	DefaultSeed       = 42
	DefaultMinLabeled = 10
	DefaultTrees      = 200
	DefaultMaxDepth   = 12

	// File Paths (relative to the working directory)
	DefaultDataDir     = "data"
	DefaultInputPath   = "data/input/dataset.csv"
	DefaultGeoJSONPath = "data/geo/kecamatan.geojson"
	DefaultOutputPath  = "data/output/predictions.csv"
	DefaultModelPath   = "data/models/forest.json"
	DefaultUploadDir   = "data/uploads"
	DefaultStorePath   = "data/predictions.db"
)
