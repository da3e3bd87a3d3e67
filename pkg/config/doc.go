// Package config loads application configuration from environment variables
// into typed structs, caching each type so it is parsed once per process.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
//
//   - Load parses the environment into any tagged struct, applying the
//     default .env file (when present) before the first parse.
//   - LoadEnv applies one or more named .env files, later files winning.
//   - MustLoad and MustLoadEnv panic on failure for configuration the
//     process cannot start without.
//   - ResetCache clears the per-type cache and ForceReloadConfig re-parses
//     a single type, which tests use after mutating the environment.
//
// # Usage
//
//	type DatabaseConfig struct {
//	    Host string `env:"DB_HOST,required"`
//	    Port int    `env:"DB_PORT" envDefault:"5432"`
//	}
//
//	var db DatabaseConfig
//	if err := config.Load(&db); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// Subsequent calls to config.Load with the same struct type are served from
// the in-memory cache without re-parsing.
//
// # Error Handling
//
// Sentinel errors compare with errors.Is: ErrParsingConfig,
// ErrLoadingEnvFile, ErrConfigNotLoaded, ErrNilPointer.
package config
