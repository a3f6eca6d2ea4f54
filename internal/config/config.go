package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatd/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	Firebase FirebaseConfig `toml:"firebase"`
	User     UserConfig     `toml:"user"`
	Notify   NotifyConfig   `toml:"notify"`
}

// FirebaseConfig locates the backend project and credentials.
type FirebaseConfig struct {
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

// UserConfig carries the local user's bootstrap profile data, written to
// the user document on first sign-in.
type UserConfig struct {
	Username    string `toml:"username"`
	PhoneNumber string `toml:"phone_number"`
	ProfilePic  string `toml:"profile_pic"`
	PushToken   string `toml:"push_token"`
}

// NotifyConfig controls push notifications for inbound messages.
type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

// Load reads config from the given path. Returns zero config and error if
// the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
