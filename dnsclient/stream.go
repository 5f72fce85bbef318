// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/dotcp.go
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/dnsovertcp.go

package dnsclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"math"
	"net"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
)

// StreamDialer abstracts over [*net.Dialer] and [*tls.Dialer].
type StreamDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// StreamTransport implements [Transport] for DNS over TCP and DNS over TLS,
// selected by which [StreamDialer] it is constructed with.
//
// Construct using [NewStreamTransport].
type StreamTransport struct {
	// Dialer is the [StreamDialer] used to query the endpoint.
	//
	// Set by [NewStreamTransport] to the user-provided value.
	Dialer StreamDialer

	// Endpoint is the server endpoint to query.
	//
	// Set by [NewStreamTransport] to the user-provided value.
	Endpoint string
}

// NewStreamTransport creates a new [*StreamTransport].
func NewStreamTransport(dialer StreamDialer, endpoint string) *StreamTransport {
	return &StreamTransport{
		Dialer:   dialer,
		Endpoint: endpoint,
	}
}

// Ensure that [*StreamTransport] implements [Transport].
var _ Transport = &StreamTransport{}

// streamConnectionStater abstracts over [*tls.Conn].
type streamConnectionStater interface {
	ConnectionState() tls.ConnectionState
}

// Exchange implements [Transport].
func (st *StreamTransport) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	conn, err := st.Dialer.DialContext(ctx, "tcp", st.Endpoint)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer conn.Close()
		<-ctx.Done()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	query = query.Clone()
	if _, ok := conn.(streamConnectionStater); ok {
		query.Flags |= dnscodec.QueryFlagBlockLengthPadding | dnscodec.QueryFlagDNSSec
	}
	query.ID = dns.Id()
	query.MaxSize = dnscodec.QueryMaxResponseSizeTCP
	queryMsg, err := query.NewMsg()
	if err != nil {
		return nil, err
	}
	rawQuery, err := queryMsg.Pack()
	if err != nil {
		return nil, err
	}

	rawQueryFrame, err := newStreamMsgFrame(rawQuery)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Write(rawQueryFrame); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	header := make([]byte, 2)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, err
	}
	length := int(header[0])<<8 | int(header[1])
	rawResp := make([]byte, length)
	if _, err := io.ReadFull(br, rawResp); err != nil {
		return nil, err
	}

	respMsg := new(dns.Msg)
	if err := respMsg.Unpack(rawResp); err != nil {
		return nil, err
	}
	return dnscodec.ParseResponse(queryMsg, respMsg)
}

// newStreamMsgFrame wraps a raw DNS message for sending over a stream
// transport, which requires a two-byte big-endian length prefix.
func newStreamMsgFrame(rawMsg []byte) ([]byte, error) {
	runtimex.Assert(len(rawMsg) <= math.MaxUint16)
	frame := []byte{byte(len(rawMsg) >> 8), byte(len(rawMsg))}
	frame = append(frame, rawMsg...)
	return frame, nil
}
