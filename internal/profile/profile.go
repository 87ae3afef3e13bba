// Package profile persists the browser-profile identity that scopes local cache keys.
// The profile is stored in ~/.config/cartsync/profile.toml by default.
package profile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
)

// Profile identifies one local installation. It is independent of the signed-in user.
type Profile struct {
	ID        string    `toml:"id"`
	CreatedAt time.Time `toml:"created_at"`
}

const defaultProfilePath = "~/.config/cartsync/profile.toml"

// DefaultPath returns the default profile file path.
func DefaultPath() string {
	return defaultProfilePath
}

// New returns a freshly generated profile.
func New() Profile {
	return Profile{ID: uuid.New().String(), CreatedAt: time.Now().UTC().Truncate(time.Second)}
}

// Load reads the profile at path. A missing, unreadable or corrupt file yields a new
// profile with found set to false.
func Load(path string) (p Profile, found bool) {
	resolved, err := resolvePath(path)
	if err != nil {
		return New(), false
	}

	file, err := os.Open(resolved)
	if err != nil {
		return New(), false
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return New(), false
	}

	if err := toml.Unmarshal(bytes, &p); err != nil {
		return New(), false
	}
	if _, err := uuid.Parse(strings.TrimSpace(p.ID)); err != nil {
		return New(), false
	}
	p.ID = strings.TrimSpace(p.ID)
	return p, true
}

// LoadOrCreate loads the profile and writes a new one when none was found.
func LoadOrCreate(path string) (Profile, error) {
	p, found := Load(path)
	if found {
		return p, nil
	}
	if err := Save(path, p); err != nil {
		return p, err
	}
	return p, nil
}

// Save writes the profile to path, creating directories as needed.
func Save(path string, p Profile) error {
	if p.ID == "" {
		return errors.New("profile id is empty")
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(defaultProfilePath)
	}
	return ExpandPath(path)
}

// ExpandPath resolves a leading ~ to the home directory and makes path absolute.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
