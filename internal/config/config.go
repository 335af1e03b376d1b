package config

import (
	"fmt"
	"os"
	"time"
)

// Config carries the server's environment configuration.
type Config struct {
	ListenAddr      string
	OpenAIKey       string
	OpenAIModel     string
	FetchTimeout    time.Duration
	ContentMaxChars int
	RegattasTable   string
	DocumentsTable  string
	HeldResultTTL   time.Duration
}

// Load reads configuration from the environment. A missing provider key is
// a configuration error the caller should treat as fatal.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getenv("OPENAI_MODEL", "gpt-4o-mini"),
		FetchTimeout:    time.Duration(getenvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
		ContentMaxChars: getenvInt("CONTENT_MAX_CHARS", 20000),
		RegattasTable:   getenv("REGATTAS_TABLE", "regattas"),
		DocumentsTable:  getenv("DOCUMENTS_TABLE", "documents"),
		HeldResultTTL:   time.Duration(getenvInt("HELD_RESULT_TTL_MINUTES", 60)) * time.Minute,
	}
	if cfg.OpenAIKey == "" {
		return cfg, fmt.Errorf("OPENAI_API_KEY is not configured")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}
