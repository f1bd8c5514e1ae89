package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expgrid/expgrid/internal/credentials"
)

func TestStart_NotEnabled(t *testing.T) {
	_, err := Start(nil, "")
	require.ErrorIs(t, err, ErrNotEnabled)

	_, err = Start(&credentials.SSH{}, "")
	require.ErrorIs(t, err, ErrNotEnabled)
}

func TestStart_MissingPrivateKey(t *testing.T) {
	cfg := &credentials.SSH{
		Address:    "bastion.invalid",
		User:       "tunnel",
		PrivateKey: "/nonexistent/id_ed25519",
		LocalBind:  "127.0.0.1:0",
		RemoteBind: "127.0.0.1:3306",
	}
	_, err := Start(cfg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private key")
}
