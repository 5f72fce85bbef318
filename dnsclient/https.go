// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/dnsoverhttps.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/dohttps.go

package dnsclient

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
)

// HTTPSClient abstracts over [*http.Client].
type HTTPSClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSTransport implements [Transport] for DNS over HTTPS (and, when
// constructed with an [*http.Client] using an HTTP/3 round tripper, DNS over
// HTTP/3).
//
// Construct using [NewHTTPSTransport].
type HTTPSTransport struct {
	// Client is the [HTTPSClient] used to query the server.
	//
	// Set by [NewHTTPSTransport] to the user-provided value.
	Client HTTPSClient

	// URL is the server URL to query.
	//
	// Set by [NewHTTPSTransport] to the user-provided value.
	URL string
}

// NewHTTPSTransport creates a new [*HTTPSTransport].
func NewHTTPSTransport(client HTTPSClient, URL string) *HTTPSTransport {
	return &HTTPSTransport{
		Client: client,
		URL:    URL,
	}
}

// Ensure that [*HTTPSTransport] implements [Transport].
var _ Transport = &HTTPSTransport{}

// Exchange implements [Transport].
func (ht *HTTPSTransport) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	// Per RFC 8484, by default we leave the query ID at zero.
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ht.URL, bytes.NewReader(rawQuery))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/dns-message")

	httpResp, err := ht.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, ErrServerMisbehaving
	}
	if httpResp.Header.Get("content-type") != "application/dns-message" {
		return nil, ErrServerMisbehaving
	}

	reader := io.LimitReader(httpResp.Body, dnscodec.QueryMaxResponseSizeTCP)
	rawResp, err := io.ReadAll(reader)
	if err != nil {
		return nil, ErrServerMisbehaving
	}

	respMsg := &dns.Msg{}
	if err := respMsg.Unpack(rawResp); err != nil {
		return nil, err
	}
	return dnscodec.ParseResponse(queryMsg, respMsg)
}
