// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package device manages a single NETCONF session with a switch.
//
// A [Device] moves through the states Unconnected, Connected and Closed. Each
// operation reports its outcome on the console writer in addition to returning
// a typed error, so a one-shot command can keep going after a failure and still
// tell the operator what happened.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	cp "github.com/felix-kaestner/copy"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ironcore-dev/netconf-ospf/internal/deviceutil"
	"github.com/ironcore-dev/netconf-ospf/internal/netconfext"
	"github.com/ironcore-dev/netconf-ospf/internal/provider"
)

// DefaultProvider is the provider used when none is configured.
const DefaultProvider = "brocade-nos"

//go:generate go run golang.org/x/tools/cmd/stringer@v0.35.0 -type=State
type State int

const (
	Unconnected State = iota
	Connected
	Closed
)

var (
	// ErrNoAddress is returned by [New] if the connection has no address.
	ErrNoAddress = errors.New("device: address is required")
	// ErrNotConnected is returned when an operation requires an open session.
	ErrNotConnected = errors.New("device: no open session")
	// ErrClosed is returned when the session has already been closed.
	ErrClosed = errors.New("device: session already closed")
)

// ConnectError is returned by [Device.Connect] if the session could not be established.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("unable to establish NETCONF session with %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Device is a NETCONF session handle for one switch. It is not safe for concurrent use.
type Device struct {
	conn  deviceutil.Connection
	prov  provider.OSPFProvider
	name  string
	state State
	out   io.Writer
}

type Option func(*Device)

// WithProvider selects the registered provider used to talk to the device.
func WithProvider(name string) Option {
	return func(d *Device) {
		if name != "" {
			d.name = name
		}
	}
}

// WithOutput sets the console writer. Defaults to [os.Stdout].
func WithOutput(w io.Writer) Option {
	return func(d *Device) {
		d.out = w
	}
}

// New returns an Unconnected device for conn.
// Empty username, password, port and timeout are replaced by the defaults of [deviceutil].
func New(conn deviceutil.Connection, opts ...Option) (*Device, error) {
	if strings.TrimSpace(conn.Address) == "" {
		return nil, ErrNoAddress
	}
	d := &Device{
		conn:  cp.Deep(conn),
		name:  DefaultProvider,
		state: Unconnected,
		out:   os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.conn.Username == "" {
		d.conn.Username = deviceutil.DefaultUsername
	}
	if d.conn.Password == "" {
		d.conn.Password = deviceutil.DefaultPassword
	}
	if d.conn.Port == 0 {
		d.conn.Port = deviceutil.DefaultPort
	}
	if d.conn.Timeout == 0 {
		d.conn.Timeout = deviceutil.DefaultTimeout
	}

	fn, err := provider.Get(d.name)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	prov, ok := fn().(provider.OSPFProvider)
	if !ok {
		return nil, fmt.Errorf("device: provider %q does not support OSPF", d.name)
	}
	d.prov = prov
	return d, nil
}

// Address returns the address of the device.
func (d *Device) Address() string { return d.conn.Address }

// State returns the current session state.
func (d *Device) State() State { return d.state }

// Connect opens the NETCONF session. On failure the device stays Unconnected
// and a [*ConnectError] is returned.
func (d *Device) Connect(ctx context.Context) error {
	switch d.state {
	case Connected:
		return nil
	case Closed:
		return ErrClosed
	}

	log := logf.FromContext(ctx).WithValues("address", d.conn.Address, "provider", d.name)
	log.V(1).Info("Connecting to device", "target", d.conn.Target(), "username", d.conn.Username)

	if err := d.prov.Connect(logf.IntoContext(ctx, log), &d.conn); err != nil {
		cerr := &ConnectError{Address: d.conn.Address, Err: err}
		d.printf("%v\n", cerr)
		log.Error(err, "Failed to connect to device")
		return cerr
	}

	d.state = Connected
	log.Info("Connected to device")
	return nil
}

type applyOptions struct {
	area      string
	rbridgeID int
}

type ApplyOption func(*applyOptions)

// WithArea sets the OSPF area. Defaults to [provider.DefaultArea].
func WithArea(area string) ApplyOption {
	return func(o *applyOptions) {
		o.area = area
	}
}

// WithRBridgeID sets the routing bridge. Defaults to [provider.DefaultRBridgeID].
func WithRBridgeID(id int) ApplyOption {
	return func(o *applyOptions) {
		o.rbridgeID = id
	}
}

func newApplyOptions(opts []ApplyOption) *applyOptions {
	o := &applyOptions{
		area:      provider.DefaultArea,
		rbridgeID: provider.DefaultRBridgeID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OSPFDocuments returns the documents [Device.ApplyOSPF] submits for iface, in
// submission order, without connecting to the device.
func (d *Device) OSPFDocuments(iface string, opts ...ApplyOption) ([]netconfext.Document, error) {
	b, ok := d.prov.(provider.DocumentBuilder)
	if !ok {
		return nil, fmt.Errorf("device: provider %q cannot render configuration documents", d.name)
	}
	o := newApplyOptions(opts)
	return b.OSPFDocuments(&provider.OSPFRequest{
		Interface: iface,
		Area:      o.area,
		RBridgeID: o.rbridgeID,
	}), nil
}

// ApplyOSPF enables OSPF on the routing bridge and attaches iface to the area.
// The router configuration is submitted first; if the device rejects it the
// interface configuration is not sent. Failures are returned as [*provider.SubmitError].
func (d *Device) ApplyOSPF(ctx context.Context, iface string, opts ...ApplyOption) (*provider.Result, error) {
	o := newApplyOptions(opts)

	switch d.state {
	case Unconnected:
		d.printf("NETCONF edit operation failed: %v\n", ErrNotConnected)
		return nil, ErrNotConnected
	case Closed:
		d.printf("NETCONF edit operation failed: %v\n", ErrClosed)
		return nil, ErrClosed
	}

	log := logf.FromContext(ctx).WithValues("address", d.conn.Address, "protocol", provider.Protocol, "interface", iface, "area", o.area, "rbridgeID", o.rbridgeID)
	log.Info("Applying OSPF configuration")

	res, err := d.prov.EnsureOSPF(logf.IntoContext(ctx, log), &provider.OSPFRequest{
		Interface: iface,
		Area:      o.area,
		RBridgeID: o.rbridgeID,
	})

	var serr *provider.SubmitError
	if err == nil || (errors.As(err, &serr) && serr.Document == provider.DocumentInterface) {
		d.printf("%s configured successfully on router %s\n", provider.Protocol, d.conn.Address)
	}
	if err != nil {
		d.printf("NETCONF edit operation failed: %v\n", err)
		log.Error(err, "Failed to apply OSPF configuration")
		return nil, err
	}
	d.printf("Interface %s is configured successfully with area %s\n", iface, o.area)

	log.Info("Applied OSPF configuration", "replies", len(res.Replies))
	return &res, nil
}

// Close ends the NETCONF session. The device is Closed afterwards, even if the
// device did not acknowledge the close-session request.
func (d *Device) Close(ctx context.Context) error {
	switch d.state {
	case Unconnected:
		d.printf("close of session with router %s failed: %v\n", d.conn.Address, ErrNotConnected)
		return ErrNotConnected
	case Closed:
		d.printf("close of session with router %s failed: %v\n", d.conn.Address, ErrClosed)
		return ErrClosed
	}

	log := logf.FromContext(ctx).WithValues("address", d.conn.Address)
	err := d.prov.Disconnect(logf.IntoContext(ctx, log), &d.conn)
	d.state = Closed
	if err != nil {
		d.printf("close of session with router %s failed: %v\n", d.conn.Address, err)
		log.Error(err, "Failed to close session")
		return fmt.Errorf("device: failed to close session: %w", err)
	}

	d.printf("The session with router %s closed successfully\n", d.conn.Address)
	log.V(1).Info("Session closed")
	return nil
}

func (d *Device) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}
