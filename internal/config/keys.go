package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MUGEN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "MUGEN_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "sheets.apps_script_url", typ: kString, env: "MUGEN_APPS_SCRIPT_URL",
		apply:   func(cfg *Config, v any) { cfg.Sheets.AppsScriptURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheets.AppsScriptURL },
	},
	{
		key: "gemini.api_key", typ: kString, env: "MUGEN_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "MUGEN_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.base_url", typ: kString, env: "MUGEN_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "whatsapp.token", typ: kString, env: "MUGEN_WHATSAPP_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.Token },
	},
	{
		key: "whatsapp.phone_id", typ: kString, env: "MUGEN_WHATSAPP_PHONE_ID",
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.PhoneID = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.PhoneID },
	},
	{
		key: "whatsapp.verify_token", typ: kString, env: "MUGEN_WHATSAPP_VERIFY_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.VerifyToken = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.VerifyToken },
	},
	{
		key: "storage.backend", typ: kString, env: "MUGEN_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MUGEN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "persona.voice_name", typ: kString, env: "MUGEN_PERSONA_VOICE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Persona.VoiceName = v.(string) },
		extract: func(cfg Config) any { return cfg.Persona.VoiceName },
	},
	{
		key: "persona.preamble", typ: kString, env: "MUGEN_PERSONA_PREAMBLE",
		apply:   func(cfg *Config, v any) { cfg.Persona.Preamble = v.(string) },
		extract: func(cfg Config) any { return cfg.Persona.Preamble },
	},
	{
		key: "persona.marker", typ: kString, env: "MUGEN_PERSONA_MARKER",
		apply:   func(cfg *Config, v any) { cfg.Persona.Marker = v.(string) },
		extract: func(cfg Config) any { return cfg.Persona.Marker },
	},
	{
		key: "persona.negative_marker", typ: kString, env: "MUGEN_PERSONA_NEGATIVE_MARKER",
		apply:   func(cfg *Config, v any) { cfg.Persona.NegativeMarker = v.(string) },
		extract: func(cfg Config) any { return cfg.Persona.NegativeMarker },
	},
	{
		key: "log.level", typ: kString, env: "MUGEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}
