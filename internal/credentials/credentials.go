// Package credentials loads the separate credentials document for the
// networked backend: host, user, password, and optional SSH tunnel
// parameters, kept out of the main declarative config so it can be
// excluded from version control.
package credentials

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SSH describes an optional tunnel to reach the database host.
type SSH struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	PrivateKey string `yaml:"key"`
	LocalBind  string `yaml:"local_bind"`
	RemoteBind string `yaml:"remote_bind"`
}

// Enabled reports whether an SSH tunnel was configured at all.
func (s *SSH) Enabled() bool {
	return s != nil && s.Address != ""
}

// Credentials is the networked-backend connection document.
type Credentials struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSH      *SSH   `yaml:"ssh"`
}

// Load parses a credentials document from path.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: reading %s: %w", path, err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("credentials: parsing %s: %w", path, err)
	}
	if creds.Host == "" || creds.User == "" {
		return nil, fmt.Errorf("credentials: host and user are required")
	}
	if creds.Port == 0 {
		creds.Port = 3306
	}
	return &creds, nil
}
