package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"authgate/pkg/domain"
)

// Mirror keeps a copy of the cached session outside the process, the way a
// browser keeps one in local storage.
type Mirror interface {
	Save(token string, user *domain.UserProfile) error
	Clear() error
}

// FileMirror stores the session as JSON in a file readable only by the owner.
type FileMirror struct {
	Path string
}

func (m FileMirror) Save(token string, user *domain.UserProfile) error {
	raw, err := json.Marshal(domain.Session{Token: token, User: user})
	if err != nil {
		return fmt.Errorf("encode session mirror: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o700); err != nil {
		return fmt.Errorf("create session mirror dir: %w", err)
	}
	return os.WriteFile(m.Path, raw, 0o600)
}

// Load reads a previously saved session. A missing file is not an error.
func (m FileMirror) Load() (*domain.Session, error) {
	raw, err := os.ReadFile(m.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session mirror: %w", err)
	}
	return &sess, nil
}

func (m FileMirror) Clear() error {
	err := os.Remove(m.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
