package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings when set.
const (
	GroqAPIKeyEnv   = "GROQ_API_KEY"
	OpenAIAPIKeyEnv = "OPENAI_API_KEY"
	OllamaHostEnv   = "OLLAMA_HOST"
	LogLevelEnv     = "SBE_LOG_LEVEL"
)

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "sbe"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yml"
)

// GlobalConfigPath returns the path to the per-user config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/sbe/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// FindConfig walks up from start looking for sbe.yml. The per-user config
// file is the last resort. Returns the file path or an error if none exists.
func FindConfig(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		candidate := filepath.Join(abs, ConfigFile)
		if fileExists(candidate) {
			return candidate, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			break
		}
		abs = parent
	}

	if global := GlobalConfigPath(); global != "" && fileExists(global) {
		return global, nil
	}
	return "", fmt.Errorf("no %s found", ConfigFile)
}

// ApplyEnv applies environment overrides. A set variable wins over the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(GroqAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(OpenAIAPIKeyEnv); v != "" && c.Embedding.Provider == "openai" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(OllamaHostEnv); v != "" && (c.Embedding.Provider == "" || c.Embedding.Provider == "ollama") {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv(LogLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

// loadDotEnv loads .env from the working directory when present.
// A missing file is not an error.
func loadDotEnv() {
	_ = godotenv.Load()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
