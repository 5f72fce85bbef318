// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/resolver/manual"
)

// schemeCounter gives every [BalancedChannel] its own manual-resolver
// scheme, so that multiple channels in the same process never collide in
// grpc's global resolver registry.
var schemeCounter atomic.Uint64

// BalancedChannel is a thin, cheaply clonable facade over a real
// [*grpc.ClientConn] whose endpoint set is kept in sync with a
// [ServiceProbe]'s diffs. It holds no probe state of its own (§4.7); it
// forwards request invocations and otherwise behaves like any other
// [grpc.ClientConnInterface].
//
// Construct via [*BalancedChannelBuilder.Build].
type BalancedChannel struct {
	*grpc.ClientConn

	shared *channelShared
}

// channelShared is the state a [BalancedChannel] and all of its clones
// share: the done-channel that signals the probe to stop, guarded by a
// single [sync.Once] so closing from any clone is safe exactly once.
type channelShared struct {
	done      chan struct{}
	closeOnce sync.Once
}

// Ensure that [*BalancedChannel] implements [grpc.ClientConnInterface].
var _ grpc.ClientConnInterface = &BalancedChannel{}

// newBalancedChannel dials a [*grpc.ClientConn] against a private manual
// resolver, starts the goroutine that turns the probe's [ChangeEvent]
// stream into full [resolver.State] pushes, and wraps the result.
func newBalancedChannel(
	definition *ServiceDefinition,
	policy *endpointPolicy,
	events chan ChangeEvent,
	done chan struct{},
	extraDialOptions []grpc.DialOption,
) (*BalancedChannel, error) {
	scheme := fmt.Sprintf("lbchannel-%d", schemeCounter.Add(1))
	builder := manual.NewBuilderWithScheme(scheme)

	dialOptions := []grpc.DialOption{
		grpc.WithResolvers(builder),
		grpc.WithDefaultServiceConfig(`{"loadBalancingConfig":[{"round_robin":{}}]}`),
		grpc.WithChainUnaryInterceptor(requestTimeoutUnaryInterceptor(policy.requestTimeout)),
		grpc.WithChainStreamInterceptor(requestTimeoutStreamInterceptor(policy.requestTimeout)),
	}
	if policy.connectTimeout > 0 {
		dialOptions = append(dialOptions, grpc.WithContextDialer(connectTimeoutDialer(policy.connectTimeout)))
	}
	if policy.tlsConfig != nil {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(policy.tlsConfig)))
	} else {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	dialOptions = append(dialOptions, extraDialOptions...)

	target := fmt.Sprintf("%s:///%s", scheme, definition.Hostname())
	conn, err := grpc.NewClient(target, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("lbchannel: cannot dial %s: %w", definition, err)
	}

	bc := &BalancedChannel{ClientConn: conn, shared: &channelShared{done: done}}
	go consumeChanges(builder, events, done)
	return bc, nil
}

// consumeChanges drains events and republishes the cumulative endpoint set
// to resolverBuilder as a full [resolver.State] after each change, until
// done closes (signaling the probe to stop).
func consumeChanges(resolverBuilder *manual.Resolver, events <-chan ChangeEvent, done chan struct{}) {
	known := make(map[EndpointAddr]*EndpointDescriptor)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case ChangeInsert:
				known[ev.Addr] = ev.Descriptor
			case ChangeRemove:
				delete(known, ev.Addr)
			}
			resolverBuilder.UpdateState(resolver.State{Addresses: buildAddresses(known)})
		case <-done:
			return
		}
	}
}

// buildAddresses converts the current known set into [resolver.Address]
// values, one per endpoint, carrying the per-endpoint TLS server name
// override so SNI always targets the service hostname rather than the IP.
func buildAddresses(known map[EndpointAddr]*EndpointDescriptor) []resolver.Address {
	addrs := make([]resolver.Address, 0, len(known))
	for addr, desc := range known {
		a := resolver.Address{Addr: addr.String()}
		if desc != nil && desc.TLSConfig != nil {
			a.ServerName = desc.TLSConfig.ServerName
		}
		addrs = append(addrs, a)
	}
	return addrs
}

// connectTimeoutDialer returns a [grpc.WithContextDialer] dialer enforcing
// timeout as the TCP connect deadline for every endpoint.
func connectTimeoutDialer(timeout time.Duration) func(context.Context, string) (net.Conn, error) {
	dialer := &net.Dialer{}
	return func(ctx context.Context, addr string) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return dialer.DialContext(ctx, "tcp", addr)
	}
}

// requestTimeoutUnaryInterceptor applies timeout as a deadline to every
// unary call, when timeout is set.
func requestTimeoutUnaryInterceptor(timeout time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// requestTimeoutStreamInterceptor applies timeout as a deadline to stream
// establishment, when timeout is set.
func requestTimeoutStreamInterceptor(timeout time.Duration) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string,
		streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// Clone returns a handle sharing the same underlying [*grpc.ClientConn] and
// done-channel. Cloning never duplicates the probe task (§3): closing either
// handle closes the shared channel for both.
func (bc *BalancedChannel) Clone() *BalancedChannel {
	return &BalancedChannel{ClientConn: bc.ClientConn, shared: bc.shared}
}

// Close closes the shared done-channel — the consumer-gone signal the
// [ServiceProbe] observes to terminate (§5, §7) — and closes the underlying
// [*grpc.ClientConn]. Safe to call more than once, including from a clone:
// only the first call does the work and may return an error; later calls
// return nil.
func (bc *BalancedChannel) Close() error {
	var err error
	bc.shared.closeOnce.Do(func() {
		close(bc.shared.done)
		err = bc.ClientConn.Close()
	})
	return err
}
