package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig configures an SSH session.
type SSHConfig struct {
	// Host is the remote hostname or address. Required.
	Host string

	// Port is the SSH port. Default: 22.
	Port int

	// User is the remote login name. Required.
	User string

	// IdentityFile is the path to a private key file. Optional; when empty
	// the session falls back to the ssh-agent at $SSH_AUTH_SOCK.
	IdentityFile string

	// KnownHostsFile is the path used for host key verification.
	// Default: ~/.ssh/known_hosts.
	KnownHostsFile string

	// InsecureIgnoreHostKey disables host key verification.
	// Intended for test clusters only.
	InsecureIgnoreHostKey bool

	// ConnectTimeout bounds the TCP/SSH handshake. Default: 15s.
	ConnectTimeout time.Duration
}

// Validate checks required fields.
func (c *SSHConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("ssh host is required")
	}
	if strings.TrimSpace(c.User) == "" {
		return errors.New("ssh user is required")
	}
	return nil
}

// Addr returns the dial address.
func (c *SSHConfig) Addr() string {
	port := c.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", port))
}

// SSHSession implements Session over one SSH connection.
//
// Each Run opens a fresh remote exec channel on the shared connection.
// SSHSession is not safe for concurrent use.
type SSHSession struct {
	client *ssh.Client

	mu     sync.Mutex
	sftpC  *sftp.Client
	closed bool
}

// Ensure SSHSession implements Session.
var _ Session = (*SSHSession)(nil)

// DialSSH opens a new SSH session to the configured host.
//
// Authentication tries the identity file first, then the ssh-agent. Host
// keys are verified against the known_hosts file unless explicitly
// disabled.
func DialSSH(cfg SSHConfig) (*SSHSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, &CommandError{Op: "Dial", Command: cfg.Addr(), Err: joinTransport(err)}
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, &CommandError{Op: "Dial", Command: cfg.Addr(), Err: joinTransport(err)}
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}

	client, err := ssh.Dial("tcp", cfg.Addr(), &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         connectTimeout,
	})
	if err != nil {
		return nil, &CommandError{Op: "Dial", Command: cfg.Addr(), Err: joinTransport(err)}
	}

	return &SSHSession{client: client}, nil
}

// authMethods builds the auth chain: identity file, then ssh-agent.
func authMethods(cfg SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.IdentityFile != "" {
		key, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse identity file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			ag := agent.NewClient(conn)
			methods = append(methods, ssh.PublicKeysCallback(ag.Signers))
		}
		// An unreachable agent is not fatal if an identity file worked.
	}

	if len(methods) == 0 {
		return nil, errors.New("no usable auth method: set identity_file or run an ssh-agent")
	}
	return methods, nil
}

// hostKeyCallback resolves the host key verification strategy.
func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-in
	}

	path := cfg.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return cb, nil
}

// Run executes a command in a fresh exec channel and captures its output.
// A non-zero remote exit code is returned in the Result, not as an error.
func (s *SSHSession) Run(ctx context.Context, command string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return nil, joinTransport(err)
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr strings.Builder
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	// Tear down the channel if the caller gives up while the command runs.
	runDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Close()
		case <-runDone:
		}
	}()

	err = sess.Run(command)
	close(runDone)

	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, joinTransport(err)
	}
	return result, nil
}

// Fetch copies a remote file to localPath via SFTP, creating parent
// directories as needed.
func (s *SSHSession) Fetch(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := s.sftpClient()
	if err != nil {
		return joinTransport(err)
	}

	src, err := client.Open(remotePath)
	if err != nil {
		return joinTransport(fmt.Errorf("open remote %s: %w", remotePath, err))
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("create local dir: %w", err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return joinTransport(fmt.Errorf("copy %s: %w", remotePath, err))
	}
	return dst.Close()
}

// Put copies a local file to remotePath via SFTP, creating remote parent
// directories as needed.
func (s *SSHSession) Put(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := s.sftpClient()
	if err != nil {
		return joinTransport(err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer func() { _ = src.Close() }()

	if dir := filepath.ToSlash(filepath.Dir(remotePath)); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return joinTransport(fmt.Errorf("create remote dir %s: %w", dir, err))
		}
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return joinTransport(fmt.Errorf("create remote %s: %w", remotePath, err))
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return joinTransport(fmt.Errorf("copy to %s: %w", remotePath, err))
	}
	return dst.Close()
}

// Close shuts down the SFTP channel and the underlying connection.
func (s *SSHSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sftpC != nil {
		_ = s.sftpC.Close()
		s.sftpC = nil
	}
	return s.client.Close()
}

func (s *SSHSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// sftpClient lazily opens a single SFTP channel, reused across transfers.
func (s *SSHSession) sftpClient() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.sftpC != nil {
		return s.sftpC, nil
	}
	c, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("open sftp channel: %w", err)
	}
	s.sftpC = c
	return c, nil
}
