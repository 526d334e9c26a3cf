package config

import (
	"errors"

	"github.com/afriswift/settlement/internal/flagx"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// parseEnv overlays SETTLEMENT_* environment variables onto config. When
// -env names a dotenv file it is loaded first; variables already present in
// the process environment win over the file. Unset variables leave the
// field untouched. A missing dotenv file or a malformed value panics.
func parseEnv(config *Config) {
	if envFile := flagx.EnvFileFlag(); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	}

	err := envdecode.Decode(config)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		panic(err)
	}
}
