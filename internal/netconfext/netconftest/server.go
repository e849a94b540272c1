// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package netconftest provides a NETCONF over SSH server for tests.
//
// The server speaks base:1.0 framing, acknowledges every RPC with <ok/> and
// records what it received. RPCs can be rejected with an rpc-error or left
// unanswered by substring.
package netconftest

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

const delimiter = "]]>]]>"

const hello = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
	`<capabilities><capability>urn:ietf:params:netconf:base:1.0</capability></capabilities>` +
	`<session-id>%d</session-id></hello>`

var messageID = regexp.MustCompile(`message-id="([^"]*)"`)

type Server struct {
	// Addr is the "host:port" the server listens on.
	Addr string
	// HostKey is the public key the server authenticates with.
	HostKey ssh.PublicKey

	username string
	password string
	reject   []string
	stall    []string
	config   *ssh.ServerConfig
	ln       net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	conns    []net.Conn
	rpcs     []string
	sessions int
}

type Option func(*Server)

// WithCredentials sets the accepted username and password. Defaults to admin/password.
func WithCredentials(username, password string) Option {
	return func(s *Server) {
		s.username, s.password = username, password
	}
}

// WithReject answers every RPC containing substr with an rpc-error.
func WithReject(substr string) Option {
	return func(s *Server) {
		s.reject = append(s.reject, substr)
	}
}

// WithStall never answers an RPC containing substr. The SSH connection stays up.
func WithStall(substr string) Option {
	return func(s *Server) {
		s.stall = append(s.stall, substr)
	}
}

// NewServer starts a server on a loopback port. It is closed when the test ends.
func NewServer(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		tb.Fatalf("failed to create signer: %v", err)
	}

	s := &Server{
		HostKey:  signer.PublicKey(),
		username: "admin",
		password: "password",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if c.User() == s.username && string(password) == s.password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	s.config.AddHostKey(signer)

	s.ln, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to listen: %v", err)
	}
	s.Addr = s.ln.Addr().String()

	s.wg.Add(1)
	go s.serve()
	tb.Cleanup(s.Close)
	return s
}

// Close stops the server and drops all open connections.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// RPCs returns the RPCs received so far, excluding hello messages.
func (s *Server) RPCs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rpcs...)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for req := range requests {
				// The payload of a subsystem request is a length-prefixed name.
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "netconf"
				if req.WantReply {
					_ = req.Reply(ok, nil)
				}
				if ok {
					s.wg.Add(1)
					go func() {
						defer s.wg.Done()
						s.session(ch)
					}()
				}
			}
		}()
	}
}

func (s *Server) session(ch ssh.Channel) {
	defer ch.Close()

	s.mu.Lock()
	s.sessions++
	id := s.sessions
	s.mu.Unlock()

	if _, err := fmt.Fprintf(ch, hello+delimiter, id); err != nil {
		return
	}
	r := bufio.NewReader(ch)
	for {
		msg, err := readMessage(r)
		if err != nil {
			return
		}
		if strings.Contains(msg, "<hello") {
			continue
		}
		s.mu.Lock()
		s.rpcs = append(s.rpcs, msg)
		s.mu.Unlock()

		if s.stalls(msg) {
			continue
		}
		// The client tears down the channel after close-session.
		if _, err := io.WriteString(ch, s.reply(msg)+delimiter); err != nil {
			return
		}
	}
}

func (s *Server) stalls(msg string) bool {
	for _, substr := range s.stall {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func (s *Server) reply(msg string) string {
	var id string
	if m := messageID.FindStringSubmatch(msg); m != nil {
		id = m[1]
	}
	body := "<ok/>"
	for _, substr := range s.reject {
		if strings.Contains(msg, substr) {
			body = "<rpc-error>" +
				"<error-type>application</error-type>" +
				"<error-tag>invalid-value</error-tag>" +
				"<error-severity>error</error-severity>" +
				"<error-message>rejected by test server</error-message>" +
				"</rpc-error>"
			break
		}
	}
	return `<rpc-reply xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="` + id + `">` + body + `</rpc-reply>`
}

func readMessage(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		sb.WriteByte(b)
		if b == '>' && strings.HasSuffix(sb.String(), delimiter) {
			return strings.TrimSpace(strings.TrimSuffix(sb.String(), delimiter)), nil
		}
	}
}
