// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/sirupsen/logrus"
)

// changeSender is the bounded send-capability a [ServiceProbe] uses to
// publish [ChangeEvent] values. Sending blocks until the event is accepted,
// the context is canceled, or done closes — done closing is how the
// transport side signals "I am gone" without racing a close on events
// itself (closing a channel a goroutine is actively sending on panics).
type changeSender struct {
	events chan<- ChangeEvent
	done   <-chan struct{}
}

// send delivers ev, returning [ErrConsumerGone] if done has closed
// or the context error if ctx was canceled first.
func (s *changeSender) send(ctx context.Context, ev ChangeEvent) error {
	select {
	case <-s.done:
		return ErrConsumerGone
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewChangeStream creates the bounded FIFO a [ServiceProbe] publishes on and
// a [BalancedChannel] consumes from. capacity is typically 1024 (§6.4).
// Closing done is the canonical shutdown signal: the probe's next send
// observes it and the running loop exits with [ErrConsumerGone].
func NewChangeStream(capacity int) (events chan ChangeEvent, done chan struct{}) {
	return make(chan ChangeEvent, capacity), make(chan struct{})
}

// ServiceProbe is the discovery loop: it owns the last-known endpoint set,
// computes diffs against a [LookupService]'s fresh results, and emits
// [ChangeEvent] values in insert-before-remove order on a bounded stream.
//
// A [*ServiceProbe] is single-threaded with respect to its own state: at
// most one pass at a time, no lock on the known set is required because
// only the probe's own goroutine ever touches it.
//
// Construct using [NewServiceProbe].
type ServiceProbe struct {
	definition *ServiceDefinition
	lookup     LookupService
	interval   time.Duration
	policy     *endpointPolicy
	reporter   *changeSender
	logger     *logrus.Logger

	known map[EndpointAddr]struct{}
}

// NewServiceProbe builds a [*ServiceProbe]. known starts empty per the
// lifecycle described in the data model: it is populated only by a
// subsequent call to [*ServiceProbe.ProbeOnce] or [*ServiceProbe.Run].
func NewServiceProbe(
	definition *ServiceDefinition,
	lookup LookupService,
	interval time.Duration,
	policy *endpointPolicy,
	events chan<- ChangeEvent,
	done <-chan struct{},
) *ServiceProbe {
	logger := policy.logf()
	return &ServiceProbe{
		definition: definition,
		lookup:     lookup,
		interval:   interval,
		policy:     policy,
		reporter:   &changeSender{events: events, done: done},
		logger:     logger,
		known:      make(map[EndpointAddr]struct{}),
	}
}

// Known returns a snapshot copy of the endpoints this probe currently
// believes the transport knows about.
func (sp *ServiceProbe) Known() map[EndpointAddr]struct{} {
	return maps.Clone(sp.known)
}

// ProbeOnce performs a single discovery pass: resolve, diff, publish,
// commit. On resolver failure it returns an error wrapping
// [ErrResolveFailure] and leaves the known set untouched. On a send failure
// because the consumer is gone it returns an error wrapping
// [ErrConsumerGone] and also leaves known unchanged, even if a prefix of
// the diff was already accepted by the stream — known is only committed
// once every event in the pass has been accepted.
func (sp *ServiceProbe) ProbeOnce(ctx context.Context) error {
	fresh, err := sp.lookup.Resolve(ctx, sp.definition)
	if err != nil {
		return err
	}

	toAdd := make(map[EndpointAddr]struct{})
	for addr := range fresh {
		if _, ok := sp.known[addr]; !ok {
			toAdd[addr] = struct{}{}
		}
	}
	toRemove := make(map[EndpointAddr]struct{})
	for addr := range sp.known {
		if _, ok := fresh[addr]; !ok {
			toRemove[addr] = struct{}{}
		}
	}

	inserted := make(map[EndpointAddr]struct{}, len(toAdd))
	events := make([]ChangeEvent, 0, len(toAdd)+len(toRemove))
	for addr := range toAdd {
		desc := EndpointBuilder(addr, sp.policy)
		if desc == nil {
			continue
		}
		events = append(events, Insert(addr, desc))
		inserted[addr] = struct{}{}
	}
	for addr := range toRemove {
		events = append(events, Remove(addr))
	}

	for _, ev := range events {
		if err := sp.reporter.send(ctx, ev); err != nil {
			return err
		}
	}

	newKnown := make(map[EndpointAddr]struct{}, len(sp.known)+len(inserted))
	for addr := range sp.known {
		if _, removed := toRemove[addr]; removed {
			continue
		}
		newKnown[addr] = struct{}{}
	}
	for addr := range inserted {
		newKnown[addr] = struct{}{}
	}
	sp.known = newKnown
	return nil
}

// Run executes the discovery loop until the change-stream consumer closes.
// Resolver failures are logged at warning level and never stop the loop;
// only a closed consumer ([ErrConsumerGone]) does. Intended to be spawned as
// a detached goroutine.
func (sp *ServiceProbe) Run() {
	for {
		err := sp.ProbeOnce(context.Background())
		if errors.Is(err, ErrConsumerGone) {
			return
		}
		if err != nil {
			sp.logger.WithFields(logrus.Fields{
				"hostname": sp.definition.Hostname(),
				"err":      err,
			}).Warn("lbchannel: probe pass failed, keeping previous endpoint set")
		}

		select {
		case <-sp.reporter.done:
			return
		case <-time.After(sp.interval):
		}
	}
}
