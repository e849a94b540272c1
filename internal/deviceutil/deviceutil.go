// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0
package deviceutil

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	// DefaultPort is the well-known port for NETCONF over SSH.
	DefaultPort = 830
	// DefaultUsername is used when a [Connection] carries no username.
	DefaultUsername = "admin"
	// DefaultPassword is used when a [Connection] carries no password.
	DefaultPassword = "password"
	// DefaultTimeout bounds session setup and each RPC round trip.
	DefaultTimeout = 10 * time.Second
)

// Connection holds everything required to open a NETCONF session with a device.
type Connection struct {
	// Address is the host name or IP address of the device, optionally followed by a port.
	Address  string
	Username string
	Password string
	// Port is used when Address does not include one.
	Port int
	// HostKeyVerify enables verification of the device host key against KnownHostsFile.
	HostKeyVerify bool
	// KnownHostsFile defaults to ~/.ssh/known_hosts.
	KnownHostsFile string
	// AllowAgent enables public key authentication with the keys held by the ssh-agent at $SSH_AUTH_SOCK.
	AllowAgent bool
	// LookForKeys enables public key authentication with the keys in KeyFiles,
	// or with ~/.ssh/id_{rsa,ecdsa,ed25519} when KeyFiles is empty.
	LookForKeys bool
	KeyFiles    []string
	// Timeout bounds session setup and each RPC round trip. Defaults to [DefaultTimeout].
	Timeout time.Duration
}

// Target returns the "host:port" pair to dial.
func (c *Connection) Target() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return EnsurePort(c.Address, strconv.Itoa(port))
}

// EnsurePort appends port to host unless host already carries one.
// Bare IPv6 addresses are bracketed.
func EnsurePort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}

var defaultKeyFiles = []string{"id_rsa", "id_ecdsa", "id_ed25519"}

// SSHConfig builds the [ssh.ClientConfig] for the connection.
// The returned func releases the ssh-agent socket, if one was opened, and must be called once the handshake is done.
func SSHConfig(c *Connection) (*ssh.ClientConfig, func() error, error) {
	done := func() error { return nil }

	var methods []ssh.AuthMethod
	if c.AllowAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to connect to ssh-agent: %w", err)
			}
			done = conn.Close
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if c.LookForKeys {
		signers, err := loadSigners(c.KeyFiles, c.Password)
		if err != nil {
			_ = done()
			return nil, nil, err
		}
		if len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	methods = append(methods,
		ssh.Password(c.Password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = c.Password
			}
			return answers, nil
		}),
	)

	cb, err := hostKeyCallback(c)
	if err != nil {
		_ = done()
		return nil, nil, err
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &ssh.ClientConfig{
		User:            c.Username,
		Auth:            methods,
		HostKeyCallback: cb,
		Timeout:         timeout,
	}, done, nil
}

func hostKeyCallback(c *Connection) (ssh.HostKeyCallback, error) {
	if !c.HostKeyVerify {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
	path := c.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts from %s: %w", path, err)
	}
	return cb, nil
}

// loadSigners parses the given private keys. Encrypted keys are decrypted with passphrase.
// When files is empty, the default identities in ~/.ssh are tried and missing ones are skipped.
func loadSigners(files []string, passphrase string) ([]ssh.Signer, error) {
	optional := len(files) == 0
	if optional {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil
		}
		for _, name := range defaultKeyFiles {
			files = append(files, filepath.Join(home, ".ssh", name))
		}
	}

	signers := make([]ssh.Signer, 0, len(files))
	for _, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			if optional && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(b)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(b, []byte(passphrase))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
		}
		signers = append(signers, signer)
	}
	return signers, nil
}
