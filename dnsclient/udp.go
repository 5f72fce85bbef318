// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/doudp.go
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/dnsoverudp.go

package dnsclient

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
)

// NetDialer abstracts over [*net.Dialer].
type NetDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// UDPTransport implements [Transport] for DNS over UDP.
//
// Construct using [NewUDPTransport].
type UDPTransport struct {
	// Dialer is the [NetDialer] used to create connections.
	//
	// Set by [NewUDPTransport] to the user-provided value.
	Dialer NetDialer

	// Endpoint is the server endpoint to query.
	//
	// Set by [NewUDPTransport] to the user-provided value.
	Endpoint netip.AddrPort

	// ObserveRawQuery is an optional hook invoked with a copy of the raw query.
	ObserveRawQuery func([]byte)

	// ObserveRawResponse is an optional hook invoked with a copy of the raw response.
	ObserveRawResponse func([]byte)
}

// NewUDPTransport creates a new [*UDPTransport].
func NewUDPTransport(dialer NetDialer, endpoint netip.AddrPort) *UDPTransport {
	return &UDPTransport{
		Dialer:   dialer,
		Endpoint: endpoint,
	}
}

// Ensure that [*UDPTransport] implements [Transport].
var _ Transport = &UDPTransport{}

// Dial creates a [net.Conn] to the configured endpoint. This allows reusing a
// long-lived connection across multiple exchanges via [*UDPTransport.ExchangeWithConn].
func (ut *UDPTransport) Dial(ctx context.Context) (net.Conn, error) {
	return ut.Dialer.DialContext(ctx, "udp", ut.Endpoint.String())
}

// Exchange implements [Transport].
func (ut *UDPTransport) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	conn, err := ut.Dial(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer conn.Close()
		<-ctx.Done()
	}()

	return ut.ExchangeWithConn(ctx, conn, query)
}

// SendQuery sends a [*dnscodec.Query] over a [net.Conn].
//
// Only context deadlines are honored; canceling the context without a
// deadline does not interrupt in-flight I/O.
func (ut *UDPTransport) SendQuery(ctx context.Context, conn net.Conn, query *dnscodec.Query) (*dns.Msg, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	query = query.Clone()
	query.MaxSize = dnscodec.QueryMaxResponseSizeUDP
	queryMsg, err := query.NewMsg()
	if err != nil {
		return nil, err
	}
	rawQuery, err := queryMsg.Pack()
	if err != nil {
		return nil, err
	}
	if ut.ObserveRawQuery != nil {
		ut.ObserveRawQuery(bytes.Clone(rawQuery))
	}

	if _, err := conn.Write(rawQuery); err != nil {
		return nil, err
	}
	return queryMsg, nil
}

// RecvResponse receives a [*dnscodec.Response] over a [net.Conn].
func (ut *UDPTransport) RecvResponse(ctx context.Context, conn net.Conn, queryMsg *dns.Msg) (*dnscodec.Response, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	buff := make([]byte, dnscodec.QueryMaxResponseSizeUDP)
	count, err := conn.Read(buff)
	if err != nil {
		return nil, err
	}
	rawResp := buff[:count]
	if ut.ObserveRawResponse != nil {
		ut.ObserveRawResponse(bytes.Clone(rawResp))
	}

	respMsg := new(dns.Msg)
	if err := respMsg.Unpack(rawResp); err != nil {
		return nil, err
	}
	return dnscodec.ParseResponse(queryMsg, respMsg)
}

// ExchangeWithConn sends a query and receives a response over an existing connection.
func (ut *UDPTransport) ExchangeWithConn(ctx context.Context, conn net.Conn, query *dnscodec.Query) (*dnscodec.Response, error) {
	queryMsg, err := ut.SendQuery(ctx, conn, query)
	if err != nil {
		return nil, err
	}
	return ut.RecvResponse(ctx, conn, queryMsg)
}
