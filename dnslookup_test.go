// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"crypto/tls"
	"net/http"
	"testing"

	"github.com/bassosimone/lbchannel/dnsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDnsLookupSecureWiresQUICAndTLSTransports(t *testing.T) {
	lookup, err := NewDnsLookupSecure(&tls.Config{ServerName: "example.com"})
	require.NoError(t, err)
	require.NotNil(t, lookup)
	assert.NotNil(t, lookup.client)
	assert.NotEmpty(t, lookup.client.Transports)
	require.GreaterOrEqual(t, len(lookup.client.Transports), 2)
	assert.IsType(t, &dnsclient.QUICTransport{}, lookup.client.Transports[0])
	assert.IsType(t, &dnsclient.StreamTransport{}, lookup.client.Transports[1])
}

func TestNewDnsLookupOverHTTPSBuildsWorkingLookupService(t *testing.T) {
	lookup := NewDnsLookupOverHTTPS(http.DefaultClient, "https://dns.google/dns-query")
	require.NotNil(t, lookup)
	var _ LookupService = lookup
	assert.NotEmpty(t, lookup.client.Transports)
}
