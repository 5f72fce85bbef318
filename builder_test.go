// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 5: eager success — builder in Eager mode, with a resolver that
// succeeds, returns a channel without error.
func TestBuilderEagerSuccess(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	lookup := LookupServiceFunc(func(ctx context.Context, d *ServiceDefinition) (map[EndpointAddr]struct{}, error) {
		return addrSet("127.0.0.1:8000"), nil
	})

	channel, err := NewBuilder(def).
		WithLookupService(lookup).
		WithResolutionStrategy(Eager(20 * time.Second)).
		Build()
	require.NoError(t, err)
	defer channel.Close()
}

// Scenario 4: eager failure — builder fails and no probe task is running afterward.
func TestBuilderEagerFailure(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	boom := errors.New("boom")
	lookup := LookupServiceFunc(func(ctx context.Context, d *ServiceDefinition) (map[EndpointAddr]struct{}, error) {
		return nil, boom
	})

	channel, err := NewBuilder(def).
		WithLookupService(lookup).
		WithResolutionStrategy(Eager(20 * time.Second)).
		Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialResolutionFailed)
	assert.Nil(t, channel)
}

func TestBuilderEagerTimeout(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	lookup := LookupServiceFunc(func(ctx context.Context, d *ServiceDefinition) (map[EndpointAddr]struct{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	channel, err := NewBuilder(def).
		WithLookupService(lookup).
		WithResolutionStrategy(Eager(10 * time.Millisecond)).
		Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialResolutionFailed)
	assert.Nil(t, channel)
}

func TestBuilderLazyReturnsImmediatelyWithNoEndpoints(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	called := make(chan struct{}, 1)
	lookup := LookupServiceFunc(func(ctx context.Context, d *ServiceDefinition) (map[EndpointAddr]struct{}, error) {
		select {
		case called <- struct{}{}:
		default:
		}
		return addrSet("127.0.0.1:8000"), nil
	})

	channel, err := NewBuilder(def).
		WithLookupService(lookup).
		WithProbeInterval(time.Hour).
		Build()
	require.NoError(t, err)
	defer channel.Close()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("background probe never ran under lazy strategy")
	}
}

func TestBuilderConnectTimeoutDefaultsToRequestTimeout(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	b := NewBuilder(def).WithRequestTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, b.resolveConnectTimeout())

	b2 := NewBuilder(def).WithRequestTimeout(5 * time.Second).WithConnectTimeout(time.Second)
	assert.Equal(t, time.Second, b2.resolveConnectTimeout())
}

// WithSecureDnsLookup should take priority over the plain [DnsLookup]
// default and produce a [*DnsLookup] wired against DNS-over-QUIC and
// DNS-over-TLS transports, falling back to UDP.
func TestBuilderResolveLookupServicePrefersSecureDnsLookup(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	b := NewBuilder(def).WithSecureDnsLookup(&tls.Config{ServerName: "example.com"})
	lookup, err := b.resolveLookupService()
	require.NoError(t, err)
	_, ok := lookup.(*DnsLookup)
	assert.True(t, ok, "expected *DnsLookup, got %T", lookup)
}

// An explicit WithLookupService still wins over WithSecureDnsLookup.
func TestBuilderResolveLookupServiceExplicitLookupWinsOverSecure(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	fake := &sequencedLookup{
		results: []map[EndpointAddr]struct{}{{}},
		errs:    []error{nil},
	}
	b := NewBuilder(def).
		WithSecureDnsLookup(&tls.Config{}).
		WithLookupService(fake)
	lookup, err := b.resolveLookupService()
	require.NoError(t, err)
	assert.Same(t, fake, lookup)
}

func TestBuilderCloneSharesUnderlyingConnAndDoneChannel(t *testing.T) {
	def := MustNewServiceDefinition("example.com", 8000)
	lookup := LookupServiceFunc(func(ctx context.Context, d *ServiceDefinition) (map[EndpointAddr]struct{}, error) {
		return addrSet("127.0.0.1:8000"), nil
	})

	channel, err := NewBuilder(def).
		WithLookupService(lookup).
		WithProbeInterval(time.Hour).
		Build()
	require.NoError(t, err)

	clone := channel.Clone()
	assert.Same(t, channel.ClientConn, clone.ClientConn)

	require.NoError(t, clone.Close())
	require.NoError(t, channel.Close())
}
