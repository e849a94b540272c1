// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0
package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Juniper/go-netconf/netconf"

	"github.com/ironcore-dev/netconf-ospf/internal/deviceutil"
	"github.com/ironcore-dev/netconf-ospf/internal/netconfext"
)

const (
	// Protocol is the routing protocol configured by [OSPFProvider].
	Protocol = "OSPF"
	// DefaultArea is the OSPF backbone area.
	DefaultArea = "0.0.0.0"
	// DefaultRBridgeID selects the first routing bridge of a fabric.
	DefaultRBridgeID = 1
)

// Provider is the common interface used to establish and tear down connections to the provider.
type Provider interface {
	Connect(context.Context, *deviceutil.Connection) error
	Disconnect(context.Context, *deviceutil.Connection) error
}

type Result struct {
	// Replies holds the replies returned by the device, one per submitted document, in submission order.
	Replies []*netconf.RPCReply
}

// OSPFProvider is the interface for the realization of OSPF configuration over different providers.
type OSPFProvider interface {
	Provider

	// EnsureOSPF enables OSPF on the routing bridge and attaches the interface to the area.
	// The router document is submitted first. If it fails, the interface document is not sent.
	EnsureOSPF(context.Context, *OSPFRequest) (Result, error)
}

// DocumentBuilder is implemented by providers that can render their OSPF
// configuration without a session, e.g. for a dry run.
type DocumentBuilder interface {
	// OSPFDocuments returns the documents EnsureOSPF submits, in submission order.
	OSPFDocuments(*OSPFRequest) []netconfext.Document
}

type OSPFRequest struct {
	// Interface is the ten gigabit ethernet interface name, e.g. "1/0/1".
	Interface string
	// Area is the OSPF area in dotted-quad notation.
	Area string
	// RBridgeID identifies the routing bridge within the fabric.
	RBridgeID int
}

// Document names one of the configuration documents submitted by [OSPFProvider.EnsureOSPF].
type Document string

const (
	DocumentRouter    Document = "router"
	DocumentInterface Document = "interface"
)

// SubmitError is returned when the device rejects a configuration document or the submission fails in transit.
type SubmitError struct {
	Document Document
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("failed to submit %s configuration: %v", e.Document, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

var mu sync.RWMutex

// ProviderFunc returns a new [Provider] instance.
type ProviderFunc func() Provider

// providers holds all registered providers.
// It should be accessed in a thread-safe manner and kept private to this package.
var providers = make(map[string]ProviderFunc)

// Register registers a new provider with the given name.
// If a provider with the same name already exists, it panics.
func Register(name string, provider ProviderFunc) {
	mu.Lock()
	defer mu.Unlock()
	if provider == nil {
		panic("Register provider is nil")
	}
	if _, ok := providers[name]; ok {
		panic("Register called twice for provider " + name)
	}
	providers[name] = provider
}

// Get returns the provider with the given name.
// If the provider does not exist, it returns an error.
func Get(name string) (ProviderFunc, error) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return provider, nil
}

// Providers returns a slice of all registered provider names.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(providers))
}
