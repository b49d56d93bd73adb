// Package config loads notesync settings from the space.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Dir is the per-space state directory.
	Dir = ".notesync"

	settingsFile = "settings.json"
	tokenFile    = "google_token.json"

	// ConfigPage is the SilverBullet page whose space-lua blocks may
	// override settings with config.set("notesync.<key>", value).
	ConfigPage = "CONFIG.md"

	spaceConfigPrefix = "notesync."
)

// Settings are the user-editable options.
type Settings struct {
	GeminiAPIKey       string `json:"geminiApiKey"`
	GoogleClientID     string `json:"googleClientId"`
	GoogleClientSecret string `json:"googleClientSecret"`
	AutoTagging        bool   `json:"autoTagging"`

	CalendarID string `json:"calendarId"`
	TimeZone   string `json:"timeZone"`
	UTCOffset  string `json:"utcOffset"`

	// TokenFile holds the Google OAuth2 token. Relative paths resolve
	// against the space root.
	TokenFile string `json:"tokenFile"`

	// MaxTags caps the tags written per note. Zero means the default.
	MaxTags int `json:"maxTags,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		AutoTagging: true,
		CalendarID:  "primary",
		TimeZone:    "Asia/Tokyo",
		UTCOffset:   "+09:00",
		TokenFile:   filepath.Join(Dir, tokenFile),
	}
}

// SettingsPath returns where settings live for a space.
func SettingsPath(spacePath string) string {
	return filepath.Join(spacePath, Dir, settingsFile)
}

// Load reads settings from path over the defaults. A missing file yields
// the defaults.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}

// Save writes settings to path, creating parent directories.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overrides credentials from the environment.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		s.GeminiAPIKey = v
	}
	if v := getenv("GOOGLE_CLIENT_ID"); v != "" {
		s.GoogleClientID = v
	}
	if v := getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		s.GoogleClientSecret = v
	}
}

// ApplySpaceConfig applies notesync.* values set in a CONFIG.md page.
// Keys it does not know are returned so callers can warn about them.
func (s *Settings) ApplySpaceConfig(content string) []string {
	values := ParseConfigPage(content)

	var unknown []string
	for key, value := range values {
		name, ok := strings.CutPrefix(key, spaceConfigPrefix)
		if !ok {
			continue
		}
		if !s.set(name, value) {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

func (s *Settings) set(name string, value any) bool {
	str, isStr := value.(string)

	switch name {
	case "autoTagging":
		b, ok := value.(bool)
		if ok {
			s.AutoTagging = b
		}
		return ok
	case "maxTags":
		n, ok := value.(int)
		if ok {
			s.MaxTags = n
		}
		return ok
	case "calendarId":
		if isStr {
			s.CalendarID = str
		}
	case "timeZone":
		if isStr {
			s.TimeZone = str
		}
	case "utcOffset":
		if isStr {
			s.UTCOffset = str
		}
	default:
		return false
	}
	return isStr
}

// ResolveTokenFile returns the token path made absolute against spacePath.
func (s Settings) ResolveTokenFile(spacePath string) string {
	if s.TokenFile == "" || filepath.IsAbs(s.TokenFile) {
		return s.TokenFile
	}
	return filepath.Join(spacePath, s.TokenFile)
}

// LoadForSpace loads settings.json, applies CONFIG.md overrides, then the
// environment.
func LoadForSpace(spacePath, settingsPath string) (Settings, error) {
	if settingsPath == "" {
		settingsPath = SettingsPath(spacePath)
	}

	s, err := Load(settingsPath)
	if err != nil {
		return s, err
	}

	if data, err := os.ReadFile(filepath.Join(spacePath, ConfigPage)); err == nil {
		s.ApplySpaceConfig(string(data))
	}

	s.ApplyEnv(nil)
	return s, nil
}
