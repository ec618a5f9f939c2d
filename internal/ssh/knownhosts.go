package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyStore checks host keys against a known_hosts file and records
// hosts it has not seen before.
type hostKeyStore struct {
	path  string
	check ssh.HostKeyCallback
	log   *zap.Logger

	mu sync.Mutex
}

// NewHostKeyCallback returns a host key callback backed by the known_hosts
// file at path, creating the file and its directory if needed. An empty path
// accepts any key. A new host is trusted and appended; a known host
// presenting a different key is rejected.
func NewHostKeyCallback(path string, log *zap.Logger) (ssh.HostKeyCallback, error) {
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // Host key checking disabled by config.
	}
	if log == nil {
		log = zap.NewNop()
	}

	if err := ensureFile(path); err != nil {
		return nil, err
	}
	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}

	s := &hostKeyStore{path: path, check: check, log: log.With(zap.String("known_hosts", path))}
	return s.verify, nil
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // Path is from user config.
	if err != nil {
		return fmt.Errorf("create known_hosts: %w", err)
	}
	return f.Close()
}

func (s *hostKeyStore) verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	err := s.check(hostname, remote, key)
	var keyErr *knownhosts.KeyError
	switch {
	case err == nil:
		return nil
	case !errors.As(err, &keyErr):
		return err
	case len(keyErr.Want) > 0:
		s.log.Warn("ssh host key changed", zap.String("host", hostname),
			zap.String("fingerprint", ssh.FingerprintSHA256(key)))
		return fmt.Errorf("host key mismatch for %s: %w", hostname, err)
	}
	return s.add(hostname, key)
}

func (s *hostKeyStore) add(hostname string, key ssh.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known_hosts: %w", err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key) + "\n"
	_, err = f.WriteString(line)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append to known_hosts: %w", err)
	}

	s.log.Info("ssh host key added", zap.String("host", hostname),
		zap.String("fingerprint", ssh.FingerprintSHA256(key)))
	return nil
}
