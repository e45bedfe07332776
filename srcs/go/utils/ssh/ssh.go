// Package ssh runs commands on the hosts of a cluster over golang.org/x/crypto/ssh.
package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/lsds/paramserver/srcs/go/utils/iostream"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

var (
	defaultTimeout = 8 * time.Second
	keyFiles       = []string{"id_ed25519", "id_rsa"}

	errNoKey = errors.New("no usable private key")
)

// Config is a pair of user and host
type Config struct {
	User string
	Host string
}

func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "22")
}

func withDefaultUser(name string) string {
	if len(name) == 0 {
		if u, err := user.Current(); err == nil {
			return u.Username
		}
	}
	return name
}

func (c Config) complete() Config {
	return Config{
		User: withDefaultUser(c.User),
		Host: withDefaultPort(c.Host),
	}
}

func (c Config) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.Host)
}

// Client is a connection to one host.
type Client struct {
	config Config
	client *ssh.Client
}

func New(cfg Config) (*Client, error) {
	cfg = cfg.complete()
	key, err := defaultKey()
	if err != nil {
		return nil, err
	}
	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(key)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         defaultTimeout,
	}
	client, err := ssh.Dial("tcp", cfg.Host, clientConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg)
	}
	return &Client{config: cfg, client: client}, nil
}

func (c *Client) String() string {
	return c.config.String()
}

// Watch runs cmd and streams its outputs to the redirectors until it exits
// or ctx is done.
func (c *Client) Watch(ctx context.Context, cmd string, redirectors []*iostream.StdWriters) error {
	session, err := c.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	stdout, err := session.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return err
	}
	// with a pty the remote process gets SIGHUP when the session closes
	if err := session.RequestPty("xterm", 80, 40, nil); err != nil {
		return err
	}
	results := iostream.StdReaders{Stdout: stdout, Stderr: stderr}
	ioDone := results.Stream(redirectors...)
	if err := session.Start(cmd); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		ioDone.Wait()
		done <- session.Wait()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		session.Signal(ssh.SIGTERM)
		session.Close()
		return ctx.Err()
	}
}

func defaultKey() (ssh.Signer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	for _, name := range keyFiles {
		bs, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if key, err := ssh.ParsePrivateKey(bs); err == nil {
			return key, nil
		}
	}
	return nil, errors.Wrapf(errNoKey, "tried %q in %s", keyFiles, filepath.Join(home, ".ssh"))
}

func (c *Client) Close() error {
	return c.client.Close()
}
