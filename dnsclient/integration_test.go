// SPDX-License-Identifier: GPL-3.0-or-later

package dnsclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

// These tests reach real public resolvers over the network and are skipped
// in short mode.

func TestDNSOverTLSWorks(t *testing.T) {
	if testing.Short() {
		t.Skip("skip test in short mode")
	}
	ctx := context.Background()
	tlsDialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    &tls.Config{ServerName: "dns.google"},
	}
	client := NewClient(NewStreamTransport(tlsDialer, "8.8.8.8:853"))
	addrs, err := client.LookupA(ctx, "dns.google")
	assert.NoError(t, err)
	slices.Sort(addrs)
	assert.Equal(t, []string{"8.8.4.4", "8.8.8.8"}, addrs)
}

func TestDNSOverQUICWorks(t *testing.T) {
	if testing.Short() {
		t.Skip("skip test in short mode")
	}
	ctx := context.Background()
	quicDialer := &QUICDialConfig{
		TLSConfig: &tls.Config{ServerName: "dns.adguard.com"},
	}
	client := NewClient(NewQUICTransport(quicDialer, "dns.adguard.com:853"))
	addrs, err := client.LookupA(ctx, "dns.google")
	assert.NoError(t, err)
	slices.Sort(addrs)
	assert.Equal(t, []string{"8.8.4.4", "8.8.8.8"}, addrs)
}

func TestDNSOverHTTPSWorks(t *testing.T) {
	if testing.Short() {
		t.Skip("skip test in short mode")
	}
	ctx := context.Background()
	client := NewClient(NewHTTPSTransport(http.DefaultClient, "https://dns.google/dns-query"))
	addrs, err := client.LookupA(ctx, "dns.google")
	assert.NoError(t, err)
	slices.Sort(addrs)
	assert.Equal(t, []string{"8.8.4.4", "8.8.8.8"}, addrs)
}
