package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/QKhanh04/innerg-api/internal/flagx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// defaultEnvFile is loaded when present and no -env-file flag is given.
const defaultEnvFile = ".env"

// parseEnv loads a dotenv file into the process environment (variables that
// are already set win) and then maps environment variables onto config.
// Unset variables leave the current value alone.
func parseEnv(config *Config) error {
	if err := loadEnvFile(flagx.EnvFileFlags()); err != nil {
		return err
	}
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}
