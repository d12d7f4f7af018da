// Package config loads server settings from an ini file, falling back
// to defaults for anything unset.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

type Config struct {
	ListenAddr string
	DataDir    string
	UploadDir  string
	// JWTSecret signs the auth cookie.
	JWTSecret string
	// SessionTTL bounds the auth cookie lifetime.
	SessionTTL time.Duration

	ZegoAppID  uint32
	ZegoSecret string
	// TokenTTL bounds room-token validity.
	TokenTTL time.Duration

	MaxUploadBytes int64
}

func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		DataDir:        "data",
		UploadDir:      "uploads",
		SessionTTL:     24 * time.Hour,
		TokenTTL:       time.Hour,
		MaxUploadBytes: 5 << 20,
	}
}

// Load reads the ini file at path over the defaults. A missing file is
// an error; a missing key is not.
func Load(path string) (Config, error) {
	cfg := Default()
	file, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	section := file.Section("")

	readString(section, "listen_addr", &cfg.ListenAddr)
	readString(section, "data_dir", &cfg.DataDir)
	readString(section, "upload_dir", &cfg.UploadDir)
	readString(section, "jwt_secret", &cfg.JWTSecret)
	readString(section, "zego_server_secret", &cfg.ZegoSecret)

	if key, ok := lookup(section, "zego_app_id"); ok {
		v, err := key.Uint()
		if err != nil {
			return Config{}, fmt.Errorf("zego_app_id: %w", err)
		}
		cfg.ZegoAppID = uint32(v)
	}
	if key, ok := lookup(section, "session_ttl_seconds"); ok {
		v, err := key.Int()
		if err != nil {
			return Config{}, fmt.Errorf("session_ttl_seconds: %w", err)
		}
		cfg.SessionTTL = time.Duration(v) * time.Second
	}
	if key, ok := lookup(section, "token_ttl_seconds"); ok {
		v, err := key.Int()
		if err != nil {
			return Config{}, fmt.Errorf("token_ttl_seconds: %w", err)
		}
		cfg.TokenTTL = time.Duration(v) * time.Second
	}
	if key, ok := lookup(section, "max_upload_mb"); ok {
		v, err := key.Int64()
		if err != nil {
			return Config{}, fmt.Errorf("max_upload_mb: %w", err)
		}
		cfg.MaxUploadBytes = v << 20
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.ZegoAppID == 0 || c.ZegoSecret == "" {
		return fmt.Errorf("zego_app_id and zego_server_secret are required")
	}
	return nil
}

func lookup(section *ini.Section, name string) (*ini.Key, bool) {
	if !section.HasKey(name) {
		return nil, false
	}
	return section.Key(name), true
}

func readString(section *ini.Section, name string, dst *string) {
	if key, ok := lookup(section, name); ok && key.String() != "" {
		*dst = key.String()
	}
}
