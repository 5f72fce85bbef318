// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"

	"github.com/bassosimone/lbchannel/dnsclient"
)

// DnsLookup is the default [LookupService]. It issues DNS A and AAAA
// queries directly against the nameservers configured for this host,
// bypassing any OS-level resolver cache: every call reaches the network via
// [dnsclient.Client], which keeps no response cache of its own.
//
// Construct using [NewDnsLookup].
type DnsLookup struct {
	client *dnsclient.Client
}

// NewDnsLookup builds a [*DnsLookup] using the system's configured
// nameservers (resolv.conf on POSIX), dialed with a plain [*net.Dialer].
func NewDnsLookup() (*DnsLookup, error) {
	transports, err := dnsclient.SystemTransports(&net.Dialer{}, dnsclient.DefaultResolvConfPath)
	if err != nil {
		return nil, fmt.Errorf("lbchannel: cannot configure DnsLookup: %w", err)
	}
	return &DnsLookup{client: dnsclient.NewClient(transports...)}, nil
}

// NewDnsLookupWithClient builds a [*DnsLookup] around a caller-supplied
// [*dnsclient.Client], e.g. one configured with DNS-over-TLS, DNS-over-QUIC
// or DNS-over-HTTPS transports instead of the plain UDP default.
func NewDnsLookupWithClient(client *dnsclient.Client) *DnsLookup {
	return &DnsLookup{client: client}
}

// NewDnsLookupSecure builds a [*DnsLookup] that tries DNS-over-QUIC, then
// DNS-over-TLS, falling back to plain DNS-over-UDP only for nameservers
// that don't answer on port 853. See [dnsclient.SecureSystemTransports].
func NewDnsLookupSecure(tlsConfig *tls.Config) (*DnsLookup, error) {
	transports, err := dnsclient.SecureSystemTransports(&net.Dialer{}, dnsclient.DefaultResolvConfPath, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("lbchannel: cannot configure secure DnsLookup: %w", err)
	}
	return &DnsLookup{client: dnsclient.NewClient(transports...)}, nil
}

// NewDnsLookupOverHTTPS builds a [*DnsLookup] that resolves exclusively via
// DNS-over-HTTPS against serverURL (e.g. "https://dns.google/dns-query").
// httpClient is typically [http.DefaultClient], or an [*http.Client]
// configured with an HTTP/3 round tripper for DNS-over-HTTP/3.
func NewDnsLookupOverHTTPS(httpClient dnsclient.HTTPSClient, serverURL string) *DnsLookup {
	return &DnsLookup{client: dnsclient.NewClient(dnsclient.NewHTTPSTransport(httpClient, serverURL))}
}

// Ensure that [*DnsLookup] implements [LookupService].
var _ LookupService = &DnsLookup{}

// Resolve implements [LookupService].
func (dl *DnsLookup) Resolve(ctx context.Context, definition *ServiceDefinition) (map[EndpointAddr]struct{}, error) {
	addrs, err := dl.client.LookupHost(ctx, definition.Hostname())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolveFailure, err)
	}

	result := make(map[EndpointAddr]struct{}, len(addrs))
	for _, addr := range addrs {
		ip, err := netip.ParseAddr(addr)
		if err != nil {
			continue
		}
		result[netip.AddrPortFrom(ip.Unmap(), definition.Port())] = struct{}{}
	}
	return result, nil
}
