// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/resolver/manual"
	"google.golang.org/grpc/serviceconfig"
)

func TestBuildAddressesWithoutTLSHasNoServerName(t *testing.T) {
	addr := netip.MustParseAddrPort("127.0.0.1:8000")
	known := map[EndpointAddr]*EndpointDescriptor{
		addr: {Addr: addr, TLSConfig: nil},
	}
	addrs := buildAddresses(known)
	require.Len(t, addrs, 1)
	assert.Equal(t, "127.0.0.1:8000", addrs[0].Addr)
	assert.Empty(t, addrs[0].ServerName)
}

func TestConsumeChangesPublishesCumulativeState(t *testing.T) {
	events, done := NewChangeStream(8)
	defer close(done)

	var observed []resolver.State
	stateCh := make(chan resolver.State, 8)
	r := manual.NewBuilderWithScheme("lbchanneltest")
	r.BuildCallback = func(resolver.Target, resolver.ClientConn, resolver.BuildOptions) {}
	go consumeChanges(r, events, done)

	// Swap in our own CC so UpdateState calls are observable without a real dial.
	cc := &fakeClientConn{states: stateCh}
	r.CC = cc

	a := netip.MustParseAddrPort("127.0.0.1:9000")
	b := netip.MustParseAddrPort("127.0.0.2:9000")
	events <- Insert(a, &EndpointDescriptor{Addr: a, URI: "http://127.0.0.1:9000"})

	select {
	case s := <-stateCh:
		observed = append(observed, s)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first state push")
	}
	require.Len(t, observed[0].Addresses, 1)

	events <- Remove(a)
	select {
	case s := <-stateCh:
		observed = append(observed, s)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second state push")
	}
	assert.Empty(t, observed[1].Addresses)
}

// fakeClientConn implements the subset of resolver.ClientConn manual.Resolver
// needs so tests can observe UpdateState without a live gRPC dial.
type fakeClientConn struct {
	states chan resolver.State
}

func (f *fakeClientConn) UpdateState(s resolver.State) error {
	f.states <- s
	return nil
}
func (f *fakeClientConn) ReportError(error)                       {}
func (f *fakeClientConn) NewAddress(addresses []resolver.Address) {}
func (f *fakeClientConn) ParseServiceConfig(string) *serviceconfig.ParseResult {
	return nil
}

func TestConnectTimeoutDialerEnforcesDeadline(t *testing.T) {
	dial := connectTimeoutDialer(10 * time.Millisecond)
	// 192.0.2.0/24 is reserved for documentation (RFC 5737): unroutable, so
	// the dial will hang until our timeout fires rather than failing fast.
	_, err := dial(context.Background(), net.JoinHostPort("192.0.2.1", "81"))
	require.Error(t, err)
}
