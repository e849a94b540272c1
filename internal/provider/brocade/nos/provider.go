// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package nos

import (
	"context"
	"fmt"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ironcore-dev/netconf-ospf/internal/deviceutil"
	"github.com/ironcore-dev/netconf-ospf/internal/netconfext"
	"github.com/ironcore-dev/netconf-ospf/internal/provider"
)

// Name is the name the provider is registered with.
const Name = "brocade-nos"

var (
	_ provider.Provider        = (*Provider)(nil)
	_ provider.OSPFProvider    = (*Provider)(nil)
	_ provider.DocumentBuilder = (*Provider)(nil)
)

// Provider configures Brocade Network OS (VDX) switches over NETCONF.
type Provider struct {
	client netconfext.Client
	dial   netconfext.DialFunc
}

func NewProvider() provider.Provider {
	return &Provider{}
}

func (p *Provider) Connect(ctx context.Context, conn *deviceutil.Connection) (err error) {
	p.client, err = netconfext.Dial(ctx, conn,
		netconfext.WithLogger(logf.FromContext(ctx)),
		netconfext.WithDialer(p.dial),
	)
	if err != nil {
		return fmt.Errorf("failed to create netconf session: %w", err)
	}
	return nil
}

func (p *Provider) Disconnect(ctx context.Context, _ *deviceutil.Connection) error {
	if p.client == nil {
		return netconfext.ErrNotConnected
	}
	err := p.client.Close(ctx)
	p.client = nil
	return err
}

func (p *Provider) EnsureOSPF(ctx context.Context, req *provider.OSPFRequest) (provider.Result, error) {
	var res provider.Result
	if p.client == nil {
		return res, netconfext.ErrNotConnected
	}

	iface, router := NewOSPF(req.Interface, req.Area, req.RBridgeID)

	replies, err := p.client.EditConfig(ctx, netconfext.Running, router)
	if err != nil {
		return res, &provider.SubmitError{Document: provider.DocumentRouter, Err: err}
	}
	res.Replies = append(res.Replies, replies...)

	replies, err = p.client.EditConfig(ctx, netconfext.Running, iface)
	if err != nil {
		return res, &provider.SubmitError{Document: provider.DocumentInterface, Err: err}
	}
	res.Replies = append(res.Replies, replies...)

	return res, nil
}

func (p *Provider) OSPFDocuments(req *provider.OSPFRequest) []netconfext.Document {
	iface, router := NewOSPF(req.Interface, req.Area, req.RBridgeID)
	return []netconfext.Document{router, iface}
}

func init() {
	provider.Register(Name, NewProvider)
}
