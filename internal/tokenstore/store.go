// Package tokenstore persists the single OAuth2 refresh token across
// restarts. The token is stored as plain text in one file under the
// configured data directory: absence means "not yet authorized", deletion
// means "revoked, re-authorization required".
//
// This is a leaf package with no dependencies beyond the standard library;
// both the session (persist on rotation) and bootstrap (load at startup)
// import it.
package tokenstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// fileName is the token file name inside the data directory.
	fileName = "refresh_token"

	// filePerms restricts the token file to owner-only read/write.
	filePerms = 0o600

	// dirPerms is used when creating the data directory.
	dirPerms = 0o700
)

// Store persists a single refresh token in a file under dir.
type Store struct {
	dir string
}

// New creates a Store rooted at the given data directory.
// The directory is created lazily on first Save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the full path of the token file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Load reads the persisted refresh token.
//
// Returns:
//   - string: The token, or "" if no token has been persisted yet
//   - error: If the file exists but cannot be read
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tokenstore: reading %s: %w", s.Path(), err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Save overwrites the persisted refresh token atomically
// (write-to-temp + rename) with owner-only permissions.
// Never logs or includes the token value in errors.
func (s *Store) Save(token string) error {
	if token == "" {
		return errors.New("tokenstore: refusing to save empty token")
	}

	if err := os.MkdirAll(s.dir, dirPerms); err != nil {
		return fmt.Errorf("tokenstore: creating directory %s: %w", s.dir, err)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(s.dir, ".refresh_token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenstore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: setting permissions: %w", err)
	}

	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: writing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenstore: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("tokenstore: renaming into place: %w", err)
	}

	success = true
	return nil
}

// Delete removes the persisted token. Removing an absent token is not an
// error — the end state ("not authorized") is the same either way.
func (s *Store) Delete() error {
	err := os.Remove(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tokenstore: deleting %s: %w", s.Path(), err)
	}
	return nil
}
