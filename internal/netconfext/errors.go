// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package netconfext

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Juniper/go-netconf/netconf"
)

// RPCError is returned when the device answers an RPC with one or more rpc-error elements.
type RPCError struct {
	Errors []netconf.RPCError
}

// newRPCError collects the rpc-errors carried by reply or err.
// It returns nil if there are none.
func newRPCError(reply *netconf.RPCReply, err error) *RPCError {
	if reply != nil && len(reply.Errors) > 0 {
		return &RPCError{Errors: reply.Errors}
	}
	var rerr *netconf.RPCError
	if errors.As(err, &rerr) {
		return &RPCError{Errors: []netconf.RPCError{*rerr}}
	}
	return nil
}

// Severity returns "error" if any of the contained rpc-errors has severity error, "warning" otherwise.
func (e *RPCError) Severity() string {
	for _, re := range e.Errors {
		if re.Severity == "error" {
			return "error"
		}
	}
	return "warning"
}

func (e *RPCError) Error() string {
	lines := make([]string, 0, len(e.Errors))
	for _, re := range e.Errors {
		s := fmt.Sprintf("type=%s tag=%s severity=%s message=%q", re.Type, re.Tag, re.Severity, strings.TrimSpace(re.Message))
		if re.Path != "" {
			s += fmt.Sprintf(" path=%q", strings.TrimSpace(re.Path))
		}
		lines = append(lines, s)
	}
	return "netconfext: rpc-error: " + strings.Join(lines, "; ")
}
