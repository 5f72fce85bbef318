// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// DefaultProbeInterval is the default time between discovery passes (§4.6).
const DefaultProbeInterval = 10 * time.Second

// DefaultChangeStreamCapacity is the default bounded change-stream size (§6.4).
const DefaultChangeStreamCapacity = 1024

// ResolutionStrategyKind distinguishes [ResolutionStrategy] variants.
type ResolutionStrategyKind int

const (
	// StrategyLazy returns the channel handle immediately; the first
	// discovery pass happens asynchronously in the background.
	StrategyLazy ResolutionStrategyKind = iota

	// StrategyEager runs one discovery pass, bounded by Timeout, before the
	// channel handle is returned; failure or timeout fails [*BalancedChannelBuilder.Build].
	StrategyEager
)

// ResolutionStrategy selects whether the first discovery pass happens
// before ([StrategyEager]) or after ([StrategyLazy], the default) the
// channel handle is returned to the caller.
type ResolutionStrategy struct {
	Kind ResolutionStrategyKind

	// Timeout bounds the eager pass. Only meaningful when Kind is [StrategyEager].
	Timeout time.Duration
}

// Lazy is the default [ResolutionStrategy]: the channel handle returns
// immediately, possibly with zero endpoints initially.
func Lazy() ResolutionStrategy {
	return ResolutionStrategy{Kind: StrategyLazy}
}

// Eager builds a [ResolutionStrategy] that resolves once, bounded by
// timeout, before the channel handle is returned.
func Eager(timeout time.Duration) ResolutionStrategy {
	return ResolutionStrategy{Kind: StrategyEager, Timeout: timeout}
}

// BalancedChannelBuilder is the configuration surface for a
// [BalancedChannel]: an enumerated, chainable builder, not a config file or
// env-var loader (§1.3). Construct using [NewBuilder].
type BalancedChannelBuilder struct {
	definition         *ServiceDefinition
	lookupService      LookupService
	secureDNSTLSConfig *tls.Config
	probeInterval      time.Duration
	strategy           ResolutionStrategy
	requestTimeout     time.Duration
	connectTimeout     time.Duration
	connectTimeoutSet  bool
	tlsConfig          *tls.Config
	endpointLayer      func(*EndpointDescriptor) *EndpointDescriptor
	changeStreamCap    int
	logger             *logrus.Logger
	dialOptions        []grpc.DialOption
}

// NewBuilder creates a [*BalancedChannelBuilder] targeting definition, with
// [DnsLookup] as the default [LookupService], [DefaultProbeInterval] polling,
// [Lazy] resolution, and plain HTTP (no TLS) transport.
func NewBuilder(definition *ServiceDefinition) *BalancedChannelBuilder {
	return &BalancedChannelBuilder{
		definition:      definition,
		probeInterval:   DefaultProbeInterval,
		strategy:        Lazy(),
		changeStreamCap: DefaultChangeStreamCapacity,
	}
}

// WithLookupService overrides the default [DnsLookup] resolver.
func (b *BalancedChannelBuilder) WithLookupService(lookup LookupService) *BalancedChannelBuilder {
	b.lookupService = lookup
	return b
}

// WithSecureDnsLookup overrides the default [DnsLookup] to resolve over
// DNS-over-QUIC and DNS-over-TLS authenticated against tlsConfig, falling
// back to plain DNS-over-UDP only for nameservers that don't answer on
// port 853. See [NewDnsLookupSecure].
func (b *BalancedChannelBuilder) WithSecureDnsLookup(tlsConfig *tls.Config) *BalancedChannelBuilder {
	b.secureDNSTLSConfig = tlsConfig
	return b
}

// WithProbeInterval overrides [DefaultProbeInterval].
func (b *BalancedChannelBuilder) WithProbeInterval(interval time.Duration) *BalancedChannelBuilder {
	b.probeInterval = interval
	return b
}

// WithResolutionStrategy overrides [Lazy].
func (b *BalancedChannelBuilder) WithResolutionStrategy(strategy ResolutionStrategy) *BalancedChannelBuilder {
	b.strategy = strategy
	return b
}

// WithRequestTimeout sets the per-request deadline applied to every endpoint.
func (b *BalancedChannelBuilder) WithRequestTimeout(timeout time.Duration) *BalancedChannelBuilder {
	b.requestTimeout = timeout
	return b
}

// WithConnectTimeout sets the per-endpoint TCP connect deadline. If never
// called, the connect timeout defaults to the request timeout.
func (b *BalancedChannelBuilder) WithConnectTimeout(timeout time.Duration) *BalancedChannelBuilder {
	b.connectTimeout = timeout
	b.connectTimeoutSet = true
	return b
}

// WithTLSConfig attaches TLS settings, switching the endpoint scheme to
// https. ServerName is overwritten per endpoint with the service hostname
// (§4.4); any ServerName set here is ignored.
func (b *BalancedChannelBuilder) WithTLSConfig(config *tls.Config) *BalancedChannelBuilder {
	b.tlsConfig = config
	return b
}

// WithEndpointLayer installs a transformer applied to each
// [*EndpointDescriptor] after the base policy is applied, e.g. to attach
// custom per-call headers. Returning nil skips the endpoint for this pass.
func (b *BalancedChannelBuilder) WithEndpointLayer(layer func(*EndpointDescriptor) *EndpointDescriptor) *BalancedChannelBuilder {
	b.endpointLayer = layer
	return b
}

// WithChangeStreamCapacity overrides [DefaultChangeStreamCapacity].
func (b *BalancedChannelBuilder) WithChangeStreamCapacity(capacity int) *BalancedChannelBuilder {
	b.changeStreamCap = capacity
	return b
}

// WithLogger overrides the default [logrus.StandardLogger] used for warning
// log lines (§4.4, §7).
func (b *BalancedChannelBuilder) WithLogger(logger *logrus.Logger) *BalancedChannelBuilder {
	b.logger = logger
	return b
}

// WithDialOptions appends extra [grpc.DialOption] values passed through to
// the underlying [grpc.NewClient] call, e.g. additional interceptors.
func (b *BalancedChannelBuilder) WithDialOptions(opts ...grpc.DialOption) *BalancedChannelBuilder {
	b.dialOptions = append(b.dialOptions, opts...)
	return b
}

func (b *BalancedChannelBuilder) resolveConnectTimeout() time.Duration {
	if b.connectTimeoutSet {
		return b.connectTimeout
	}
	return b.requestTimeout
}

func (b *BalancedChannelBuilder) resolveLookupService() (LookupService, error) {
	if b.lookupService != nil {
		return b.lookupService, nil
	}
	if b.secureDNSTLSConfig != nil {
		return NewDnsLookupSecure(b.secureDNSTLSConfig)
	}
	return NewDnsLookup()
}

func (b *BalancedChannelBuilder) resolveLogger() *logrus.Logger {
	if b.logger != nil {
		return b.logger
	}
	return logrus.StandardLogger()
}

// Build validates the configuration, wires a [*ServiceProbe] to a fresh
// bounded change stream, and returns a [*BalancedChannel] forwarding request
// invocations to a real [*grpc.ClientConn] whose endpoint set is kept in
// sync with the probe's diffs.
//
// Under [StrategyEager], one discovery pass runs before this call returns,
// bounded by the strategy's timeout; failure or timeout returns an error
// wrapping [ErrInitialResolutionFailed] and no background task is started.
func (b *BalancedChannelBuilder) Build() (*BalancedChannel, error) {
	if b.definition == nil {
		return nil, fmt.Errorf("%w: no service definition configured", ErrInvalidHostname)
	}

	lookup, err := b.resolveLookupService()
	if err != nil {
		return nil, err
	}

	tlsConfig := b.tlsConfig
	if tlsConfig != nil {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = b.definition.Hostname()
	}

	policy := &endpointPolicy{
		hostname:       b.definition.Hostname(),
		tlsConfig:      tlsConfig,
		requestTimeout: b.requestTimeout,
		connectTimeout: b.resolveConnectTimeout(),
		endpointLayer:  b.endpointLayer,
		logger:         b.resolveLogger(),
	}

	events, done := NewChangeStream(b.changeStreamCap)
	probe := NewServiceProbe(b.definition, lookup, b.probeInterval, policy, events, done)

	if b.strategy.Kind == StrategyEager {
		ctx, cancel := context.WithTimeout(context.Background(), b.strategy.Timeout)
		defer cancel()
		if err := probe.ProbeOnce(ctx); err != nil {
			close(done)
			return nil, fmt.Errorf("%w: %w", ErrInitialResolutionFailed, err)
		}
	}

	channel, err := newBalancedChannel(b.definition, policy, events, done, b.dialOptions)
	if err != nil {
		close(done)
		return nil, err
	}

	go probe.Run()
	return channel, nil
}
