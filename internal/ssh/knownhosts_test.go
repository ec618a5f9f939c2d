package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/ssh"
)

func mustGenerateKey(t *testing.T) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func TestNewHostKeyCallback(t *testing.T) {
	t.Parallel()

	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 22}

	t.Run("empty path accepts any key", func(t *testing.T) {
		t.Parallel()

		cb, err := NewHostKeyCallback("", nil)
		require.NoError(t, err)
		assert.NoError(t, cb("example.com:22", addr, mustGenerateKey(t).PublicKey()))
	})

	t.Run("creates directory and file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "subdir", "known_hosts")
		_, err := NewHostKeyCallback(path, nil)
		require.NoError(t, err)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("trust on first use then reload", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		key := mustGenerateKey(t)
		core, logs := observer.New(zap.InfoLevel)

		cb, err := NewHostKeyCallback(path, zap.New(core).With(zap.String("chain", "tcp,ssh")))
		require.NoError(t, err)
		require.NoError(t, cb("192.0.2.1:22", addr, key.PublicKey()))

		added := logs.FilterMessage("ssh host key added").All()
		require.Len(t, added, 1)
		fields := added[0].ContextMap()
		assert.Equal(t, "tcp,ssh", fields["chain"])
		assert.Equal(t, path, fields["known_hosts"])
		assert.Equal(t, "192.0.2.1:22", fields["host"])
		assert.Equal(t, ssh.FingerprintSHA256(key.PublicKey()), fields["fingerprint"])

		data, err := os.ReadFile(path) //nolint:gosec // Test path from t.TempDir().
		require.NoError(t, err)
		assert.Contains(t, string(data), "192.0.2.1")

		cb2, err := NewHostKeyCallback(path, nil)
		require.NoError(t, err)
		assert.NoError(t, cb2("192.0.2.1:22", addr, key.PublicKey()))
	})

	t.Run("rejects changed key", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		cb, err := NewHostKeyCallback(path, nil)
		require.NoError(t, err)
		require.NoError(t, cb("192.0.2.1:22", addr, mustGenerateKey(t).PublicKey()))

		cb2, err := NewHostKeyCallback(path, nil)
		require.NoError(t, err)
		err = cb2("192.0.2.1:22", addr, mustGenerateKey(t).PublicKey())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
	})

	t.Run("existing entry", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		key := mustGenerateKey(t)
		line := "192.0.2.1 " + key.PublicKey().Type() + " " + base64.StdEncoding.EncodeToString(key.PublicKey().Marshal()) + "\n"
		require.NoError(t, os.WriteFile(path, []byte(line), 0o600))

		cb, err := NewHostKeyCallback(path, nil)
		require.NoError(t, err)
		assert.NoError(t, cb("192.0.2.1:22", addr, key.PublicKey()))
	})
}

func TestLoadSigners(t *testing.T) {
	t.Parallel()

	signers, err := LoadSigners("")
	require.NoError(t, err)
	assert.Empty(t, signers)

	_, err = LoadSigners(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "id_bad")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0o600))
	_, err = LoadSigners(bad)
	require.Error(t, err)
}
