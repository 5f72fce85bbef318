// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"context"
	"net/netip"
)

// EndpointAddr is a canonical concrete socket address (IP + port). Equality
// is the full tuple; [netip.AddrPort] already gives us comparable, unordered
// values usable directly as map keys.
type EndpointAddr = netip.AddrPort

// LookupService is the pluggable capability a [ServiceProbe] uses to resolve
// a [ServiceDefinition] into a set of [EndpointAddr]. It is deliberately a
// single-method capability rather than an interface hierarchy: production
// code plugs in [*DnsLookup], tests plug in a fake.
//
// Resolve MUST return a complete snapshot for definition at the call moment;
// partial returns are forbidden, callers treat the result as authoritative.
// An empty, non-nil result is legal and means "no endpoints known" — it is
// not an error. Resolve MAY return a different set on every call. On
// underlying infrastructure failure (DNS timeout, NXDOMAIN, network error)
// Resolve returns an error wrapping [ErrResolveFailure]; such a failure does
// not affect the probe's previously-known set.
type LookupService interface {
	Resolve(ctx context.Context, definition *ServiceDefinition) (map[EndpointAddr]struct{}, error)
}

// LookupServiceFunc adapts a plain function to [LookupService].
type LookupServiceFunc func(ctx context.Context, definition *ServiceDefinition) (map[EndpointAddr]struct{}, error)

// Resolve implements [LookupService].
func (f LookupServiceFunc) Resolve(ctx context.Context, definition *ServiceDefinition) (map[EndpointAddr]struct{}, error) {
	return f(ctx, definition)
}

// Ensure that [LookupServiceFunc] implements [LookupService].
var _ LookupService = LookupServiceFunc(nil)
