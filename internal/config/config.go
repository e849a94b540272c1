// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional device file of the netconf-ospf command.
//
// A device file holds the connection settings and OSPF defaults for a switch:
//
//	username: admin
//	password: secret
//	port: 830
//	hostKeyVerify: true
//	knownHostsFile: /etc/ssh/ssh_known_hosts
//	timeout: 30s
//	area: 0.0.0.10
//	rbridgeID: 2
//
// Every field is optional. Unset fields fall back to the defaults of [deviceutil] and [provider].
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"github.com/ironcore-dev/netconf-ospf/internal/deviceutil"
	"github.com/ironcore-dev/netconf-ospf/internal/provider"
)

type Config struct {
	Username       *string  `json:"username,omitempty"`
	Password       *string  `json:"password,omitempty"`
	Port           *int     `json:"port,omitempty"`
	HostKeyVerify  *bool    `json:"hostKeyVerify,omitempty"`
	KnownHostsFile string   `json:"knownHostsFile,omitempty"`
	AllowAgent     *bool    `json:"allowAgent,omitempty"`
	LookForKeys    *bool    `json:"lookForKeys,omitempty"`
	KeyFiles       []string `json:"keyFiles,omitempty"`
	Timeout        Duration `json:"timeout,omitzero"`
	Area           *string  `json:"area,omitempty"`
	RBridgeID      *int     `json:"rbridgeID,omitempty"`
	Provider       string   `json:"provider,omitempty"`
}

// Duration is a [time.Duration] that unmarshals from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads and validates the device file at path. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	c := new(Config)
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port != nil && (*c.Port < 1 || *c.Port > 65535) {
		errs = append(errs, fmt.Errorf("port %d out of range", *c.Port))
	}
	if c.Timeout.Duration < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.RBridgeID != nil && *c.RBridgeID < 0 {
		errs = append(errs, fmt.Errorf("rbridgeID %d must not be negative", *c.RBridgeID))
	}
	return errors.Join(errs...)
}

// Connection returns the connection settings for the device at address.
func (c *Config) Connection(address string) deviceutil.Connection {
	timeout := c.Timeout.Duration
	if timeout == 0 {
		timeout = deviceutil.DefaultTimeout
	}
	return deviceutil.Connection{
		Address:        address,
		Username:       ptr.Deref(c.Username, deviceutil.DefaultUsername),
		Password:       ptr.Deref(c.Password, deviceutil.DefaultPassword),
		Port:           ptr.Deref(c.Port, deviceutil.DefaultPort),
		HostKeyVerify:  ptr.Deref(c.HostKeyVerify, false),
		KnownHostsFile: c.KnownHostsFile,
		AllowAgent:     ptr.Deref(c.AllowAgent, false),
		LookForKeys:    ptr.Deref(c.LookForKeys, false),
		KeyFiles:       c.KeyFiles,
		Timeout:        timeout,
	}
}

// OSPFArea returns the configured area or [provider.DefaultArea].
func (c *Config) OSPFArea() string {
	return ptr.Deref(c.Area, provider.DefaultArea)
}

// OSPFRBridgeID returns the configured routing bridge or [provider.DefaultRBridgeID].
func (c *Config) OSPFRBridgeID() int {
	return ptr.Deref(c.RBridgeID, provider.DefaultRBridgeID)
}
