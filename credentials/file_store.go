package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const credentialFileMode = 0o600

// FileStore persists the access credential between process runs so a
// restart can resume the session without a fresh login. Refresh tokens are
// never written to disk: the refresh credential lives in a server-controlled
// http-only cookie.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the conventional credential file location in the
// user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "[DefaultPath] resolving home directory")
	}
	return filepath.Join(home, ".auth-session.json"), nil
}

// Save writes the credential to disk with owner-only permissions
func (fs *FileStore) Save(credential Credential) error {
	credential.RefreshToken = nil

	data, err := json.MarshalIndent(credential, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[Save] marshalling credential")
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrap(err, "[Save] creating credential directory")
	}

	if err := os.WriteFile(fs.path, data, credentialFileMode); err != nil {
		return errors.Wrap(err, "[Save] writing credential file")
	}
	return nil
}

// Load reads the persisted credential. A missing file is not an error: it
// returns nil so callers fall through to the other session sources.
func (fs *FileStore) Load() (*Credential, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Load] reading credential file")
	}

	var credential Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, errors.Wrap(err, "[Load] unmarshalling credential file")
	}
	if credential.AccessToken == "" {
		return nil, nil
	}
	return &credential, nil
}

// Clear removes the persisted credential; a missing file is a no-op
func (fs *FileStore) Clear() error {
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[Clear] removing credential file")
	}
	return nil
}
