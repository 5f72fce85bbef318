// SPDX-License-Identifier: GPL-3.0-or-later

package dnsclient

import "errors"

// ErrServerMisbehaving indicates that a DNS-over-HTTPS/3 server returned a
// response that does not conform to RFC 8484 (wrong status code or content
// type).
var ErrServerMisbehaving = errors.New("dnsclient: server misbehaving")
