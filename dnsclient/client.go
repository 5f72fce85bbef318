// SPDX-License-Identifier: GPL-3.0-or-later

package dnsclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
)

// DefaultTimeout is the default overall lookup timeout used by [*Client].
const DefaultTimeout = 10 * time.Second

// Transport performs a single DNS message exchange.
type Transport interface {
	Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error)
}

// Client resolves domain names by trying each configured [Transport] in
// order, behaving like [*net.Resolver] but using caller-supplied transports
// instead of the operating system's resolver.
//
// Construct using [NewClient].
type Client struct {
	// Transports are the [Transport] values to try, in order.
	//
	// Set by [NewClient] to the user-provided value.
	Transports []Transport

	// Timeout is the overall lookup timeout applied to every call.
	//
	// Set by [NewClient] to [DefaultTimeout].
	Timeout time.Duration
}

// NewClient creates a new [*Client] using the given transports.
func NewClient(transports ...Transport) *Client {
	return &Client{
		Transports: transports,
		Timeout:    DefaultTimeout,
	}
}

// lookupResult is an asynchronous lookup outcome.
type lookupResult[T any] struct {
	Err   error
	Value T
}

// LookupHost resolves a domain to its IPv4 and IPv6 addresses, querying for
// A and AAAA records concurrently and joining the results.
func (c *Client) LookupHost(ctx context.Context, domain string) ([]string, error) {
	ach := make(chan lookupResult[[]string], 1)
	aaaach := make(chan lookupResult[[]string], 1)
	wg := &sync.WaitGroup{}

	wg.Go(func() {
		var r lookupResult[[]string]
		r.Value, r.Err = c.LookupA(ctx, domain)
		ach <- r
	})

	wg.Go(func() {
		var r lookupResult[[]string]
		r.Value, r.Err = c.LookupAAAA(ctx, domain)
		aaaach <- r
	})

	wg.Wait()

	ares := <-ach
	aaaares := <-aaaach

	if ares.Err != nil && aaaares.Err != nil {
		return nil, errors.Join(ares.Err, aaaares.Err)
	}

	addrs := append(ares.Value, aaaares.Value...)
	if len(addrs) < 1 {
		return nil, dnscodec.ErrNoData
	}
	return addrs, nil
}

// LookupA resolves a domain to its IPv4 addresses.
func (c *Client) LookupA(ctx context.Context, domain string) ([]string, error) {
	query := dnscodec.NewQuery(domain, dns.TypeA)
	resp, err := c.lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	return resp.RecordsA()
}

// LookupAAAA resolves a domain to its IPv6 addresses.
func (c *Client) LookupAAAA(ctx context.Context, domain string) ([]string, error) {
	query := dnscodec.NewQuery(domain, dns.TypeAAAA)
	resp, err := c.lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	return resp.RecordsAAAA()
}

// lookup performs the actual exchange, trying each transport in order until
// one succeeds or the overall timeout expires.
func (c *Client) lookup(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	if len(c.Transports) < 1 {
		return nil, errors.New("dnsclient: no configured transport")
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	errv := make([]error, 0, len(c.Transports))
	for _, t := range c.Transports {
		if ctx.Err() != nil {
			errv = append(errv, ctx.Err())
			break
		}
		resp, err := t.Exchange(ctx, query)
		if err != nil {
			errv = append(errv, err)
			continue
		}
		return resp, nil
	}

	runtimex.Assert(len(errv) >= 1)
	return nil, errors.Join(errv...)
}
