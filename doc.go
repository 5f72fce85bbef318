// SPDX-License-Identifier: GPL-3.0-or-later

// Package lbchannel implements a client-side load-balancing enrichment
// layer for a gRPC transport channel. Given a [ServiceDefinition] (hostname
// and port), a [BalancedChannelBuilder] wires a [LookupService] (by default
// [DnsLookup], which bypasses OS-level DNS caches) to a background
// [ServiceProbe] that periodically refreshes the set of concrete endpoints
// and republishes diffs as [ChangeEvent] values on a bounded stream.
//
// The resulting [BalancedChannel] is a [grpc.ClientConnInterface] backed by
// a real [grpc.ClientConn] whose endpoint set tracks the probe's view of
// DNS, round-robining requests across whatever backends are currently
// known.
package lbchannel
