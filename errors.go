// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import "errors"

var (
	// ErrInvalidHostname means a hostname failed [ServiceDefinition] validation.
	ErrInvalidHostname = errors.New("lbchannel: invalid hostname")

	// ErrInitialResolutionFailed means eager resolution failed or timed out
	// during [*BalancedChannelBuilder.Build].
	ErrInitialResolutionFailed = errors.New("lbchannel: initial resolution failed")

	// ErrResolveFailure means a [LookupService] call failed. A probe pass
	// returning this error leaves the previously-known endpoint set intact.
	ErrResolveFailure = errors.New("lbchannel: resolve failure")

	// ErrConsumerGone means a send on the change stream failed because the
	// transport channel closed its receiving end. This is the sole clean
	// shutdown signal for [ServiceProbe.Run].
	ErrConsumerGone = errors.New("lbchannel: consumer gone")
)
