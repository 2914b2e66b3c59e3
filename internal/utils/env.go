package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/kelsos/doc2x-cli/internal/logger"
)

// LoadEnvironment loads variables from .env files in the working directory and
// next to the executable. Variables already set in the process win.
func LoadEnvironment() []string {
	var loaded []string

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found in current directory: %v", err)
	} else {
		loaded = append(loaded, ".env")
		logger.Debug("Loaded .env file from current directory")
	}

	execPath, err := os.Executable()
	if err != nil {
		logger.Debug("Could not determine executable path: %v", err)
		return loaded
	}

	envPath := filepath.Join(filepath.Dir(execPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Debug("No .env file found in app directory (%s): %v", filepath.Dir(execPath), err)
	} else {
		loaded = append(loaded, envPath)
		logger.Debug("Loaded .env file from app directory: %s", filepath.Dir(execPath))
	}
	return loaded
}
