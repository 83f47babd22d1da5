// Package identity supplies the stable actor id a walker publishes under.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNoIdentity is returned when no actor id can be produced.
var ErrNoIdentity = errors.New("no actor identity")

// Provider returns the id of the local actor.
type Provider interface {
	ActorID(ctx context.Context) (string, error)
}

// Static is a fixed actor id.
type Static string

// ActorID returns the id, or ErrNoIdentity when it is empty.
func (s Static) ActorID(context.Context) (string, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}

// Generate returns a fresh random actor id.
func Generate() string {
	return uuid.NewString()
}

// File keeps the actor id in a file so that it survives restarts. The file
// is created with a generated id on first use.
type File struct {
	Path string
}

// ActorID reads the stored id, creating it if needed.
func (f File) ActorID(context.Context) (string, error) {
	if f.Path == "" {
		return "", ErrNoIdentity
	}

	data, err := os.ReadFile(f.Path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if id == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrNoIdentity, f.Path)
		}
		return id, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}

	id := Generate()
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create identity dir: %w", err)
		}
	}
	if err := os.WriteFile(f.Path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write identity file: %w", err)
	}
	return id, nil
}
