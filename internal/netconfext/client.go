// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package netconfext

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Juniper/go-netconf/netconf"
	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"

	"github.com/ironcore-dev/netconf-ospf/internal/deviceutil"
)

// Datastore names a NETCONF configuration datastore.
type Datastore string

const Running Datastore = "running"

// Document is a configuration document that marshals to a <config> element.
type Document interface {
	// Describe returns a short human-readable label for the document.
	Describe() string
}

// Session is the subset of [netconf.Session] used by the client.
type Session interface {
	Exec(methods ...netconf.RPCMethod) (*netconf.RPCReply, error)
	Close() error
}

// DialFunc opens a NETCONF session over SSH with the device at target.
type DialFunc func(ctx context.Context, target string, config *ssh.ClientConfig) (Session, error)

type Client interface {
	// EditConfig submits one edit-config RPC per document to the target datastore, in order.
	// It stops at the first document the device rejects and returns the replies received so far.
	EditConfig(ctx context.Context, target Datastore, docs ...Document) ([]*netconf.RPCReply, error)
	// Close sends close-session and tears down the transport.
	// It returns [ErrNotConnected] if the session was dropped after an RPC timed out.
	Close(ctx context.Context) error
}

type client struct {
	session Session
	dial    DialFunc
	logger  logr.Logger
	timeout time.Duration
}

var (
	_ Client = &client{}
)

// ErrNotConnected is returned when the client has no open session.
var ErrNotConnected = errors.New("netconfext: not connected")

// Dial opens a NETCONF session with the device described by conn.
// By default, the client uses [slog.Default] for logging and [netconf.DialSSHTimeout] as transport,
// and every RPC round trip is bounded by the connection timeout.
func Dial(ctx context.Context, conn *deviceutil.Connection, opts ...Option) (Client, error) {
	c := newClient(nil, opts...)
	cfg, release, err := deviceutil.SSHConfig(conn)
	if err != nil {
		return nil, fmt.Errorf("netconfext: failed to build ssh config: %w", err)
	}
	defer release() //nolint:errcheck
	if c.timeout == 0 {
		c.timeout = cfg.Timeout
	}

	target := conn.Target()
	c.logger.V(1).Info("Dialing device", "target", target, "username", conn.Username)
	s, err := c.dial(ctx, target, cfg)
	if err != nil {
		return nil, fmt.Errorf("netconfext: failed to dial %s: %w", target, err)
	}
	c.session = s
	return c, nil
}

// New wraps an already established session.
func New(s Session, opts ...Option) Client {
	return newClient(s, opts...)
}

func newClient(s Session, opts ...Option) *client {
	c := &client{
		session: s,
		dial:    dialSSH,
		logger:  logr.FromSlogHandler(slog.Default().Handler()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger logr.Logger) Option {
	return func(c *client) {
		c.logger = logger
	}
}

// WithTimeout bounds each RPC round trip. If the device does not answer in time,
// the session is torn down. Zero only honors the context.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.timeout = d
	}
}

// WithDialer replaces the SSH transport used by [Dial].
func WithDialer(dial DialFunc) Option {
	return func(c *client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// dialSSH bounds the TCP connect, the SSH handshake and every later read and
// write on the transport by the timeout of config.
func dialSSH(ctx context.Context, target string, config *ssh.ClientConfig) (Session, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = deviceutil.DefaultTimeout
	}

	type result struct {
		session *netconf.Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := netconf.DialSSHTimeout(target, config, timeout)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.session, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.session != nil {
				_ = r.session.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// exec runs a single RPC. The session is closed and dropped if no reply
// arrives before the timeout or the context expires.
func (c *client) exec(ctx context.Context, method netconf.RPCMethod) (*netconf.RPCReply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		reply *netconf.RPCReply
		err   error
	}
	s := c.session
	done := make(chan result, 1)
	go func() {
		reply, err := s.Exec(method)
		done <- result{reply, err}
	}()

	select {
	case r := <-done:
		return r.reply, r.err
	case <-ctx.Done():
		// Closing the transport unblocks the pending Exec.
		_ = s.Close()
		c.session = nil
		c.logger.Info("Dropped session, device did not reply in time", "timeout", c.timeout)
		return nil, fmt.Errorf("netconfext: no reply from device: %w", ctx.Err())
	}
}

type editConfig struct {
	XMLName xml.Name `xml:"edit-config"`
	Target  struct {
		Datastore string `xml:",innerxml"`
	} `xml:"target"`
	Config []byte `xml:",innerxml"`
}

// MarshalEditConfig renders the edit-config operation that merges doc into the target datastore.
func MarshalEditConfig(target Datastore, doc Document) ([]byte, error) {
	b, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("netconfext: failed to marshal %s: %w", doc.Describe(), err)
	}
	rpc := editConfig{Config: b}
	rpc.Target.Datastore = "<" + string(target) + "/>"
	return xml.Marshal(rpc)
}

func (c *client) EditConfig(ctx context.Context, target Datastore, docs ...Document) ([]*netconf.RPCReply, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}
	replies := make([]*netconf.RPCReply, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return replies, err
		}
		b, err := MarshalEditConfig(target, doc)
		if err != nil {
			return replies, err
		}
		c.logger.V(1).Info("Sending edit-config", "target", target, "document", doc.Describe(), "payload", string(b))
		reply, err := c.exec(ctx, netconf.RawMethod(b))
		if err != nil {
			if rerr := newRPCError(reply, err); rerr != nil {
				return replies, rerr
			}
			return replies, fmt.Errorf("netconfext: edit-config %s failed: %w", doc.Describe(), err)
		}
		if reply == nil {
			return replies, fmt.Errorf("netconfext: edit-config %s: empty reply", doc.Describe())
		}
		if rerr := newRPCError(reply, nil); rerr != nil {
			if rerr.Severity() == "error" {
				return replies, rerr
			}
			c.logger.Info("Device returned warnings", "document", doc.Describe(), "warnings", rerr.Error())
		}
		c.logger.V(1).Info("Received reply", "document", doc.Describe(), "messageID", reply.MessageID, "ok", reply.Ok)
		replies = append(replies, reply)
	}
	return replies, nil
}

func (c *client) Close(ctx context.Context) (reterr error) {
	if c.session == nil {
		return ErrNotConnected
	}
	defer func() { c.session = nil }()

	reply, err := c.exec(ctx, netconf.RawMethod("<close-session/>"))
	if c.session == nil {
		return err
	}
	if rerr := newRPCError(reply, err); rerr != nil {
		reterr = rerr
	} else if err != nil {
		reterr = fmt.Errorf("netconfext: close-session failed: %w", err)
	}
	// Devices may drop the channel right after acknowledging close-session.
	if err := c.session.Close(); err != nil && !errors.Is(err, io.EOF) {
		reterr = errors.Join(reterr, fmt.Errorf("netconfext: failed to close session: %w", err))
	}
	if reterr == nil {
		c.logger.V(1).Info("Session closed")
	}
	return reterr
}
