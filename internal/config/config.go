// Package config loads service configuration from a JSON file backend,
// a .env file, and environment variables, in that order of precedence
// (environment wins). Secrets are environment-only: they never touch the
// config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Sheets   SheetsConfig
	Gemini   GeminiConfig
	WhatsApp WhatsAppConfig
	Storage  StorageConfig
	Persona  PersonaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken guards the management endpoints.
	APIToken string
}

type SheetsConfig struct {
	// AppsScriptURL is the deployed Apps Script web app fronting the sheet.
	AppsScriptURL string
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type WhatsAppConfig struct {
	Token       string
	PhoneID     string
	VerifyToken string
}

type StorageConfig struct {
	// Backend selects the row store: "sheets" or "sqlite".
	Backend string
	// DataDir holds the SQLite database when Backend is "sqlite".
	DataDir string
}

type PersonaConfig struct {
	VoiceName      string
	Preamble       string
	Marker         string
	NegativeMarker string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Gemini: GeminiConfig{
			Model:   "gemini-1.5-flash-latest",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		},
		Storage: StorageConfig{
			Backend: "sheets",
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "mugenbot-data"
		}
	}
	return filepath.Join(dir, "mugenbot")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/mugenbot/config.json, then a .env file in the working
// directory if one exists, then MUGEN_* environment variables.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	// .env is a convenience for local runs; a missing file is not an error.
	godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Storage.Backend != "sheets" && cfg.Storage.Backend != "sqlite" {
		return fmt.Errorf("invalid storage backend %q: must be sheets or sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "sheets" && cfg.Sheets.AppsScriptURL == "" {
		return fmt.Errorf("missing required config: Apps Script URL. Set it via environment variable MUGEN_APPS_SCRIPT_URL or switch storage.backend to sqlite")
	}
	if cfg.Gemini.APIKey == "" {
		return fmt.Errorf("missing required config: Gemini API key. Set it via environment variable MUGEN_GEMINI_API_KEY")
	}
	if cfg.WhatsApp.Token == "" {
		return fmt.Errorf("missing required config: WhatsApp token. Set it via environment variable MUGEN_WHATSAPP_TOKEN")
	}
	if cfg.WhatsApp.PhoneID == "" {
		return fmt.Errorf("missing required config: WhatsApp phone number ID. Set it via environment variable MUGEN_WHATSAPP_PHONE_ID")
	}
	return nil
}
