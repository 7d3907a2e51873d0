package io

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func ReadFile(path string) (string, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "error reading file")
	}
	return string(bytes), nil
}

// WriteBytesToFile writes bytes to path, creating parent directories.
func WriteBytesToFile(path string, bytes []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "error creating directory")
		}
	}
	return os.WriteFile(path, bytes, 0o644)
}

func WriteStructToFile(path string, object any) error {
	bytes, err := json.MarshalIndent(object, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error marshalling object")
	}
	return WriteBytesToFile(path, bytes)
}
