// Package auth verifies startup credentials for the wire front end.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCredentials is returned for any unknown user or wrong password.
// Callers must not distinguish the two cases on the wire.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Principal is an authenticated identity.
type Principal struct {
	Name  string
	Roles []string
}

// Provider checks a username/password pair presented during startup and
// mints a session token on success.
type Provider interface {
	Login(ctx context.Context, username, password, clientIP string) (*Principal, string, error)
}

type userEntry struct {
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

type userFile struct {
	Users []userEntry `yaml:"users"`
}

// FileProvider reads credentials from users.yaml under a root directory.
// The file is re-read on every login so edits take effect without a restart.
type FileProvider struct {
	root string
}

func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

func (p *FileProvider) Login(_ context.Context, username, password, _ string) (*Principal, string, error) {
	path := filepath.Join(p.root, "users.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	var f userFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, u := range f.Users {
		if u.Name != username {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1 {
			return &Principal{Name: u.Name, Roles: u.Roles}, newToken(), nil
		}
		break
	}
	return nil, "", ErrInvalidCredentials
}

// StaticProvider holds an in-memory user table. Intended for tests and the
// demo server.
type StaticProvider struct {
	Users map[string]string
}

func (p *StaticProvider) Login(_ context.Context, username, password, _ string) (*Principal, string, error) {
	want, ok := p.Users[username]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return nil, "", ErrInvalidCredentials
	}
	return &Principal{Name: username}, newToken(), nil
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
