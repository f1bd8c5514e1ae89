package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.yaml")
	contents := `
host: db.internal
user: experimenter
password: secret
ssh:
  address: bastion.internal
  port: 22
  user: tunnel
  key: /home/user/.ssh/id_ed25519
  local_bind: 127.0.0.1:13306
  remote_bind: 127.0.0.1:3306
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	creds, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", creds.Host)
	assert.Equal(t, 3306, creds.Port)
	assert.True(t, creds.SSH.Enabled())
	assert.Equal(t, "127.0.0.1:13306", creds.SSH.LocalBind)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: db.internal\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSSH_EnabledWhenNil(t *testing.T) {
	var s *SSH
	assert.False(t, s.Enabled())
}
