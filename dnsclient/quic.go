// SPDX-License-Identifier: GPL-3.0-or-later
//
// Written by @roopeshsn and @bassosimone
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/doquic.go
// Adapted from: https://github.com/rbmk-project/dnscore/blob/v0.14.0/doquic.go
//
// See https://datatracker.ietf.org/doc/rfc9250/

package dnsclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
)

// QUICConn is an abstract QUIC connection suitable for DNS-over-QUIC.
//
// Construct using [*QUICDialConfig.DialContext].
type QUICConn interface {
	// CloseWithError closes the QUIC connection with an error code.
	CloseWithError(code quic.ApplicationErrorCode, desc string) error

	// OpenStream opens a new stream over the connection.
	OpenStream() (QUICStream, error)
}

// QUICStream is an abstract QUIC stream suitable for DNS-over-QUIC.
//
// Construct using [QUICConn.OpenStream].
type QUICStream interface {
	SetDeadline(t time.Time) error
	io.ReadWriteCloser
}

// QUICDialer dials [QUICConn] connections for DNS-over-QUIC.
//
// The [*QUICDialConfig] type implements this interface.
type QUICDialer interface {
	DialContext(ctx context.Context, network, address string) (QUICConn, error)
}

// QUICTransport implements [Transport] for DNS over QUIC.
//
// Construct using [NewQUICTransport].
type QUICTransport struct {
	// Dialer is the [QUICDialer] used to query the endpoint.
	//
	// Set by [NewQUICTransport] to the user-provided value.
	Dialer QUICDialer

	// Endpoint is the server endpoint to query.
	//
	// Set by [NewQUICTransport] to the user-provided value.
	Endpoint string
}

// NewQUICTransport creates a new [*QUICTransport].
func NewQUICTransport(dialer QUICDialer, endpoint string) *QUICTransport {
	return &QUICTransport{
		Dialer:   dialer,
		Endpoint: endpoint,
	}
}

// Ensure that [*QUICTransport] implements [Transport].
var _ Transport = &QUICTransport{}

// Exchange implements [Transport].
func (qt *QUICTransport) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	conn, err := qt.Dialer.DialContext(ctx, "udp", qt.Endpoint)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		const quicNoError = 0x00
		<-ctx.Done()
		conn.CloseWithError(quicNoError, "")
	}()

	stream, err := conn.OpenStream()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	// For DoQ the query ID is zero, per RFC 9250 Sect. 4.2.1.
	query = query.Clone()
	query.Flags |= dnscodec.QueryFlagBlockLengthPadding | dnscodec.QueryFlagDNSSec
	query.ID = 0
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

	if _, err := stream.Write(rawQueryFrame); err != nil {
		return nil, err
	}

	// RFC 9250 Sect. 4.2: the client MUST signal, via STREAM FIN, that no
	// further data will be sent on this stream.
	stream.Close()

	br := bufio.NewReader(stream)
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

// QUICListenConfig abstracts over [*net.ListenConfig].
type QUICListenConfig interface {
	ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error)
}

// Ensure that [*net.ListenConfig] implements [QUICListenConfig].
var _ QUICListenConfig = &net.ListenConfig{}

// QUICDialConfig dials [QUICConn] connections.
//
// Fill in the MANDATORY fields before use.
type QUICDialConfig struct {
	// ListenConfig is the OPTIONAL [QUICListenConfig] to use.
	//
	// If nil, we use an empty [*net.ListenConfig].
	ListenConfig QUICListenConfig

	// Config is the OPTIONAL [*quic.Config] to use.
	//
	// If nil, we use an empty config.
	Config *quic.Config

	// TLSConfig is the MANDATORY [*tls.Config] to use.
	//
	// If NextProtos is unset, we set it to "doq".
	TLSConfig *tls.Config
}

// quicConn is the internal [QUICConn] implementation.
type quicConn struct {
	Conn       *quic.Conn
	PacketConn net.PacketConn
	once       sync.Once
}

// CloseWithError implements [QUICConn].
func (c *quicConn) CloseWithError(code quic.ApplicationErrorCode, desc string) (err error) {
	c.once.Do(func() {
		err1 := c.Conn.CloseWithError(code, desc)
		err2 := c.PacketConn.Close()
		err = errors.Join(err1, err2)
	})
	return
}

// OpenStream implements [QUICConn].
func (c *quicConn) OpenStream() (QUICStream, error) {
	return c.Conn.OpenStream()
}

// DialContext dials a new [QUICConn] to the given address.
//
// This implementation does not attempt happy-eyeballs: address is resolved
// with [net.ResolveUDPAddr], which accepts an IP or a hostname, and only the
// single address it returns is dialed.
func (d *QUICDialConfig) DialContext(ctx context.Context, network, address string) (QUICConn, error) {
	udpAddr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, err
	}
	return d.dialUDPAddr(ctx, udpAddr)
}

func (d *QUICDialConfig) dialUDPAddr(ctx context.Context, addr *net.UDPAddr) (QUICConn, error) {
	lc := d.ListenConfig
	if lc == nil {
		lc = &net.ListenConfig{}
	}
	pconn, err := lc.ListenPacket(ctx, "udp", ":0")
	if err != nil {
		return nil, err
	}

	quicConfig := d.Config
	if quicConfig == nil {
		quicConfig = &quic.Config{}
	}
	tlsConfig := d.TLSConfig.Clone()
	if len(tlsConfig.NextProtos) < 1 {
		tlsConfig.NextProtos = []string{"doq"}
	}
	txp := &quic.Transport{Conn: pconn}
	conn, err := txp.Dial(ctx, addr, tlsConfig, quicConfig)
	if err != nil {
		pconn.Close()
		return nil, err
	}

	return &quicConn{PacketConn: pconn, Conn: conn}, nil
}
