// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnsclient implements a small, pluggable DNS client used to resolve
// service hostnames directly against authoritative/recursive name servers,
// bypassing whatever caching layer the operating system resolver applies.
//
// The central abstraction is [*Client], which multiplexes one or more
// [Transport] implementations:
//
//  1. DNS over UDP: [UDPTransport]
//
//  2. DNS over TCP or TLS: [StreamTransport], selected by the dialer it is
//     constructed with
//
//  3. DNS over QUIC: [QUICTransport]
//
// [SystemTransports] builds a default transport list from the host's
// resolv.conf-style nameserver configuration, with no response caching of
// its own — every call reaches the network.
//
//	transports, err := dnsclient.SystemTransports(&net.Dialer{}, dnsclient.DefaultResolvConfPath)
//	client := dnsclient.NewClient(transports...)
//	addrs, err := client.LookupHost(context.Background(), "example.com")
package dnsclient
