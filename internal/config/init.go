package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/qingcheng-ai/QingchengAPI/internal/security"
	"gopkg.in/yaml.v3"
)

// WriteDefault writes a starter config file with a freshly generated JWT secret.
// An existing file is left untouched unless overwrite is set.
func WriteDefault(path string, overwrite bool) (Config, error) {
	if ConfigExists(path) && !overwrite {
		return Config{}, fmt.Errorf("config: %s already exists", path)
	}

	cfg := Default()
	secret, errSecret := security.RandomString(security.UpperAlphanumeric, 48)
	if errSecret != nil {
		return Config{}, errSecret
	}
	cfg.JWT.Secret = secret

	data, errMarshal := yaml.Marshal(&cfg)
	if errMarshal != nil {
		return Config{}, fmt.Errorf("config: encode: %w", errMarshal)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
			return Config{}, fmt.Errorf("config: create dir: %w", errMkdir)
		}
	}
	if errWrite := os.WriteFile(path, data, 0o600); errWrite != nil {
		return Config{}, fmt.Errorf("config: write %s: %w", path, errWrite)
	}
	return cfg, nil
}
