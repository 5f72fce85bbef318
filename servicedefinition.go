// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"fmt"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// ServiceDefinition is a validated (hostname, port) pair identifying the
// logical service a [BalancedChannel] load balances over.
//
// Construct using [NewServiceDefinition] or [MustNewServiceDefinition].
// Immutable once created.
type ServiceDefinition struct {
	hostname string
	port     uint16
}

// NewServiceDefinition validates hostname as a DNS name and returns a
// [ServiceDefinition] for hostname:port.
//
// Non-ASCII hostnames are normalized to their ASCII (Punycode) form before
// syntax validation. Validation is permissive: single-character hostnames
// and wildcard labels (`*`) are accepted. It rejects strings containing
// characters outside the usual DNS label alphabet (letters, digits, `-`
// and `.`, plus `*`).
func NewServiceDefinition(hostname string, port uint16) (*ServiceDefinition, error) {
	ascii, err := idna.New(idna.MapForLookup(), idna.StrictDomainName(false)).ToASCII(hostname)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidHostname, hostname, err)
	}
	for _, r := range ascii {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '.' || r == '*') {
			return nil, fmt.Errorf("%w: %s", ErrInvalidHostname, hostname)
		}
	}
	if !dns.IsDomainName(ascii) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHostname, hostname)
	}
	return &ServiceDefinition{hostname: hostname, port: port}, nil
}

// MustNewServiceDefinition is like [NewServiceDefinition] but panics on
// error. Intended for tests and examples where hostname is a literal.
func MustNewServiceDefinition(hostname string, port uint16) *ServiceDefinition {
	def, err := NewServiceDefinition(hostname, port)
	if err != nil {
		panic(err)
	}
	return def
}

// Hostname returns the original, unnormalized hostname passed to
// [NewServiceDefinition].
func (d *ServiceDefinition) Hostname() string {
	return d.hostname
}

// Port returns the service port.
func (d *ServiceDefinition) Port() uint16 {
	return d.port
}

// String implements [fmt.Stringer].
func (d *ServiceDefinition) String() string {
	return fmt.Sprintf("%s:%d", d.hostname, d.port)
}
