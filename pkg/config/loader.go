package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is the dotenv file read by Load when no files are given.
const DefaultEnvFile = ".env"

// Load reads the given dotenv files (DefaultEnvFile when none are given) into
// the process environment and then parses environment variables into the
// provided struct. Missing dotenv files are skipped, and variables that are
// already set in the environment always win over file values.
//
// Example:
//
//	type Config struct {
//	    Port     int    `env:"PORT" envDefault:"5000"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any, files ...string) error {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	if err := loadEnvFiles(files); err != nil {
		return err
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file %s: %w", f, err)
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}
