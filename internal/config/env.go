package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; variables already present in the environment win.
var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads .env and .env.local from dir into the process environment.
// It returns the files that were loaded. Missing files are not an error.
func LoadEnvFiles(dir string) ([]string, error) {
	var loaded []string
	for _, name := range envFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, err
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// expandEnv replaces ${VAR} and $VAR references. Unset variables expand to "".
func expandEnv(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
