package credentials_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "credential.json")
	fileStore := credentials.NewFileStore(path)

	credential := credentials.Credential{
		AccessToken:  "access-001",
		RefreshToken: utils.Ptr("refresh-001"),
		IssuedAt:     time.Now().Truncate(time.Second),
	}
	require.NoError(t, fileStore.Save(credential))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := fileStore.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "access-001", loaded.AccessToken)
	require.Equal(t, credential.IssuedAt.Unix(), loaded.IssuedAt.Unix())

	t.Run("refresh token never persisted", func(t *testing.T) {
		require.Nil(t, loaded.RefreshToken)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(data), "refresh-001")
	})
}

func TestFileStoreMissingFile(t *testing.T) {
	fileStore := credentials.NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	loaded, err := fileStore.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	fileStore := credentials.NewFileStore(path)

	require.NoError(t, fileStore.Save(credentials.Credential{AccessToken: "access-001"}))
	require.NoError(t, fileStore.Clear())

	loaded, err := fileStore.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)

	t.Run("clearing twice is a no-op", func(t *testing.T) {
		require.NoError(t, fileStore.Clear())
	})
}

func TestFileStoreIgnoresEmptyCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":""}`), 0o600))

	loaded, err := credentials.NewFileStore(path).Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}
