// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"crypto/tls"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointBuilderIPv4HTTP(t *testing.T) {
	addr := netip.MustParseAddrPort("93.184.216.34:443")
	policy := &endpointPolicy{hostname: "example.com"}
	desc := EndpointBuilder(addr, policy)
	require.NotNil(t, desc)
	assert.Equal(t, "http://93.184.216.34:443", desc.URI)
	assert.Equal(t, SchemeHTTP, desc.Scheme)
	assert.Nil(t, desc.TLSConfig)
}

func TestEndpointBuilderIPv6Bracketed(t *testing.T) {
	addr := netip.MustParseAddrPort("[2001:db8::1]:8443")
	policy := &endpointPolicy{hostname: "example.com"}
	desc := EndpointBuilder(addr, policy)
	require.NotNil(t, desc)
	assert.Equal(t, "http://[2001:db8::1]:8443", desc.URI)
}

func TestEndpointBuilderTLSRebindsSNIToHostname(t *testing.T) {
	addr := netip.MustParseAddrPort("93.184.216.34:443")
	policy := &endpointPolicy{
		hostname:  "service.example.com",
		tlsConfig: &tls.Config{ServerName: "wrong.example.com"},
	}
	desc := EndpointBuilder(addr, policy)
	require.NotNil(t, desc)
	assert.Equal(t, SchemeHTTPS, desc.Scheme)
	require.NotNil(t, desc.TLSConfig)
	assert.Equal(t, "service.example.com", desc.TLSConfig.ServerName)
	assert.Equal(t, "https://93.184.216.34:443", desc.URI)
}

func TestEndpointBuilderConnectTimeoutDefaultsToRequestTimeout(t *testing.T) {
	addr := netip.MustParseAddrPort("93.184.216.34:443")
	policy := &endpointPolicy{hostname: "example.com", requestTimeout: 5 * time.Second}
	desc := EndpointBuilder(addr, policy)
	require.NotNil(t, desc)
	assert.Equal(t, 5*time.Second, desc.RequestTimeout)
	assert.Equal(t, 5*time.Second, desc.ConnectTimeout)
}

func TestEndpointBuilderExplicitConnectTimeoutWins(t *testing.T) {
	addr := netip.MustParseAddrPort("93.184.216.34:443")
	policy := &endpointPolicy{
		hostname:       "example.com",
		requestTimeout: 5 * time.Second,
		connectTimeout: 1 * time.Second,
	}
	desc := EndpointBuilder(addr, policy)
	require.NotNil(t, desc)
	assert.Equal(t, 1*time.Second, desc.ConnectTimeout)
}

func TestEndpointBuilderLayerCanReject(t *testing.T) {
	addr := netip.MustParseAddrPort("93.184.216.34:443")
	policy := &endpointPolicy{
		hostname: "example.com",
		endpointLayer: func(*EndpointDescriptor) *EndpointDescriptor {
			return nil
		},
	}
	desc := EndpointBuilder(addr, policy)
	assert.Nil(t, desc)
}

func TestEndpointBuilderLayerCanTransform(t *testing.T) {
	addr := netip.MustParseAddrPort("93.184.216.34:443")
	policy := &endpointPolicy{
		hostname: "example.com",
		endpointLayer: func(d *EndpointDescriptor) *EndpointDescriptor {
			d.RequestTimeout = 42 * time.Second
			return d
		},
	}
	desc := EndpointBuilder(addr, policy)
	require.NotNil(t, desc)
	assert.Equal(t, 42*time.Second, desc.RequestTimeout)
}
