package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
)

// DefaultEnvFile is loaded from the configuration directory when present.
const DefaultEnvFile = ".env"

// loadEnvFile loads KEY=VALUE pairs so ${VAR} references in the configuration
// can be expanded. Existing process environment variables are not overwritten.
// An explicit env_file must exist; the default one is optional.
func loadEnvFile(baseDir string, data []byte) error {
	var head struct {
		Presto struct {
			EnvFile string `yaml:"env_file"`
		} `yaml:"presto"`
	}
	// Parse errors surface later with full context.
	_ = yaml.Unmarshal(data, &head)

	if head.Presto.EnvFile != "" {
		path := head.Presto.EnvFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		if err := godotenv.Load(path); err != nil {
			return perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to load env file").
				WithContext("path", path)
		}
		return nil
	}

	path := filepath.Join(baseDir, DefaultEnvFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to load env file").
			WithContext("path", path)
	}
	return nil
}
