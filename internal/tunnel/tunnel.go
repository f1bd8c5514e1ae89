// Package tunnel manages an optional SSH tunnel to the networked
// backend's database host, keyed so that multiple workers in the same
// process reuse a single forwarded connection instead of opening one per
// worker. Across OS processes an optional lock file lets only one process
// hold a tunnel at a time; a tunnel opened by another process is not
// reused.
package tunnel

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/crypto/ssh"

	"github.com/expgrid/expgrid/internal/credentials"
	"github.com/expgrid/expgrid/internal/xlog"
)

// ErrNotEnabled is returned by Start when the credentials document
// carries no ssh section.
var ErrNotEnabled = errors.New("tunnel: ssh not configured")

// Tunnel forwards local_bind to remote_bind over an SSH connection to
// the configured bastion host.
type Tunnel struct {
	client   *ssh.Client
	listener net.Listener
	lock     *flock.Flock
	done     chan struct{}
	wg       sync.WaitGroup
}

var (
	mu       sync.Mutex
	shared   = map[string]*Tunnel{}
)

// Start opens (or reuses, for the same local_bind address) an SSH
// tunnel described by cfg. Reuse within a process is guarded by mu. When
// lockDir is non-empty, Start first takes a blocking advisory
// github.com/gofrs/flock lock on lockDir/.tunnel.lock and holds it until
// Stop, following the pattern beads uses to serialize its own sync
// command across processes: a second process waits until the first one
// stops its tunnel, and it does not detect or reuse that tunnel.
func Start(cfg *credentials.SSH, lockDir string) (*Tunnel, error) {
	if !cfg.Enabled() {
		return nil, ErrNotEnabled
	}

	mu.Lock()
	defer mu.Unlock()
	if existing, ok := shared[cfg.LocalBind]; ok {
		return existing, nil
	}

	log := xlog.New("tunnel")

	key, err := os.ReadFile(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tunnel: reading private key %s: %w", cfg.PrivateKey, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("tunnel: parsing private key: %w", err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := cfg.Address
	if cfg.Port != 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	}

	var lock *flock.Flock
	if lockDir != "" {
		lock = flock.New(filepath.Join(lockDir, ".tunnel.lock"))
		if err := lock.Lock(); err != nil {
			return nil, fmt.Errorf("tunnel: acquiring cross-process lock: %w", err)
		}
	}

	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("tunnel: dialing %s: %w", addr, err)
	}

	listener, err := net.Listen("tcp", cfg.LocalBind)
	if err != nil {
		client.Close()
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("tunnel: listening on %s: %w", cfg.LocalBind, err)
	}

	t := &Tunnel{
		client:   client,
		listener: listener,
		lock:     lock,
		done:     make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop(cfg.RemoteBind, log)

	shared[cfg.LocalBind] = t
	log.Info("ssh tunnel established", "local_bind", cfg.LocalBind, "remote_bind", cfg.RemoteBind)
	return t, nil
}

func (t *Tunnel) acceptLoop(remoteBind string, log *slog.Logger) {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				log.Error("tunnel accept failed", "err", err)
				return
			}
		}
		go t.forward(local, remoteBind, log)
	}
}

func (t *Tunnel) forward(local net.Conn, remoteBind string, log *slog.Logger) {
	remote, err := t.client.Dial("tcp", remoteBind)
	if err != nil {
		log.Error("tunnel dial remote failed", "err", err)
		local.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = copyConn(remote, local) }()
	go func() { defer wg.Done(); _, _ = copyConn(local, remote) }()
	wg.Wait()
	local.Close()
	remote.Close()
}

func copyConn(dst, src net.Conn) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
		}
		if err != nil {
			return written, err
		}
	}
}

// Stop tears down the tunnel and releases the cross-process lock, if
// one was acquired.
func (t *Tunnel) Stop() error {
	mu.Lock()
	defer mu.Unlock()

	close(t.done)
	err := t.listener.Close()
	if cerr := t.client.Close(); err == nil {
		err = cerr
	}
	t.wg.Wait()

	if t.lock != nil {
		if uerr := t.lock.Unlock(); err == nil {
			err = uerr
		}
	}

	for addr, v := range shared {
		if v == t {
			delete(shared, addr)
		}
	}
	return err
}
