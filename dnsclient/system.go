// SPDX-License-Identifier: GPL-3.0-or-later

package dnsclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"

	"github.com/miekg/dns"
)

// DefaultResolvConfPath is the path [SystemTransports] reads on POSIX systems.
const DefaultResolvConfPath = "/etc/resolv.conf"

// defaultSecureDNSPort is the well-known port for both DNS-over-TLS
// (RFC 7858) and DNS-over-QUIC (RFC 9250).
const defaultSecureDNSPort = 853

// systemNameservers reads the nameserver addresses configured in
// resolvConfPath, returning the plaintext port to use alongside them.
func systemNameservers(resolvConfPath string) ([]netip.Addr, uint16, error) {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil {
		return nil, 0, fmt.Errorf("dnsclient: cannot read %s: %w", resolvConfPath, err)
	}
	if len(cfg.Servers) < 1 {
		return nil, 0, fmt.Errorf("dnsclient: %s lists no nameservers", resolvConfPath)
	}

	port := cfg.Port
	if port == "" {
		port = "53"
	}

	addrs := make([]netip.Addr, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		addr, err := netip.ParseAddr(server)
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) < 1 {
		return nil, 0, fmt.Errorf("dnsclient: %s lists no usable nameservers", resolvConfPath)
	}
	return addrs, mustParsePort(port), nil
}

// SystemTransports builds the list of [Transport] to use for resolving
// hostnames directly against the nameservers configured for this host,
// reading them from resolvConfPath (typically [DefaultResolvConfPath]).
//
// Each configured nameserver yields one [*UDPTransport] dialed with dialer.
// There is no response cache: every [*Client.LookupA]/[*Client.LookupAAAA]
// call reaches one of these nameservers over the network.
func SystemTransports(dialer NetDialer, resolvConfPath string) ([]Transport, error) {
	addrs, port, err := systemNameservers(resolvConfPath)
	if err != nil {
		return nil, err
	}
	transports := make([]Transport, 0, len(addrs))
	for _, addr := range addrs {
		transports = append(transports, NewUDPTransport(dialer, netip.AddrPortFrom(addr, port)))
	}
	return transports, nil
}

// SecureSystemTransports builds a defense-in-depth [Transport] list for each
// nameserver configured in resolvConfPath: DNS-over-QUIC and DNS-over-TLS
// on port 853 (both authenticated against tlsConfig), falling back to plain
// DNS-over-UDP dialed with dialer for nameservers that don't answer on 853.
// [*Client] tries transports strictly in the order returned, so the secure
// transports are always attempted before the plaintext fallback.
func SecureSystemTransports(dialer NetDialer, resolvConfPath string, tlsConfig *tls.Config) ([]Transport, error) {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	addrs, port, err := systemNameservers(resolvConfPath)
	if err != nil {
		return nil, err
	}

	transports := make([]Transport, 0, 3*len(addrs))
	for _, addr := range addrs {
		secureEndpoint := netip.AddrPortFrom(addr, defaultSecureDNSPort).String()
		transports = append(transports,
			NewQUICTransport(&QUICDialConfig{TLSConfig: tlsConfig.Clone()}, secureEndpoint),
			NewStreamTransport(&tls.Dialer{Config: tlsConfig.Clone()}, secureEndpoint),
			NewUDPTransport(dialer, netip.AddrPortFrom(addr, port)),
		)
	}
	return transports, nil
}

// mustParsePort converts a resolv.conf port string to a uint16, falling back
// to the standard DNS port 53 if the string cannot be parsed.
func mustParsePort(s string) uint16 {
	var port uint16
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil || port == 0 {
		return 53
	}
	return port
}

// Ensure that [*net.Dialer] implements [NetDialer].
var _ NetDialer = &net.Dialer{}
