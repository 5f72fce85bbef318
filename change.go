// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

// ChangeKind distinguishes the two variants of [ChangeEvent].
type ChangeKind int

const (
	// ChangeInsert means a new endpoint was added.
	ChangeInsert ChangeKind = iota

	// ChangeRemove means a previously known endpoint was removed.
	ChangeRemove
)

// String implements [fmt.Stringer].
func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ChangeEvent is the tagged union the [ServiceProbe] publishes on the bounded
// change stream: either an Insert carrying the newly built descriptor for
// addr, or a Remove naming only the address to drop.
//
// Descriptor is nil for [ChangeRemove] events.
type ChangeEvent struct {
	Kind       ChangeKind
	Addr       EndpointAddr
	Descriptor *EndpointDescriptor
}

// Insert builds a [ChangeEvent] announcing a new endpoint.
func Insert(addr EndpointAddr, descriptor *EndpointDescriptor) ChangeEvent {
	return ChangeEvent{Kind: ChangeInsert, Addr: addr, Descriptor: descriptor}
}

// Remove builds a [ChangeEvent] announcing that addr should no longer be used.
func Remove(addr EndpointAddr) ChangeEvent {
	return ChangeEvent{Kind: ChangeRemove, Addr: addr}
}
