// SPDX-License-Identifier: GPL-3.0-or-later

package lbchannel

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheme is the URI scheme of an [EndpointDescriptor].
type Scheme string

const (
	// SchemeHTTP is used when no TLS configuration is set.
	SchemeHTTP Scheme = "http"

	// SchemeHTTPS is used once a TLS configuration is attached.
	SchemeHTTPS Scheme = "https"
)

// EndpointDescriptor describes a single concrete transport endpoint: its
// URI plus the per-endpoint policy (TLS, request timeout, connect timeout)
// applied to it. Built by [EndpointBuilder] from an [EndpointAddr].
type EndpointDescriptor struct {
	// Addr is the endpoint this descriptor was built from.
	Addr EndpointAddr

	// URI is "{scheme}://{host}:{port}", host bracketed for IPv6.
	URI string

	// Scheme is [SchemeHTTP] or [SchemeHTTPS].
	Scheme Scheme

	// TLSConfig is non-nil when the endpoint uses TLS. ServerName is always
	// rebound to the service's original hostname, never the resolved IP.
	TLSConfig *tls.Config

	// RequestTimeout is the per-call deadline, if any.
	RequestTimeout time.Duration

	// ConnectTimeout is the TCP connect deadline, if any.
	ConnectTimeout time.Duration
}

// endpointPolicy is the immutable per-probe policy [EndpointBuilder] applies
// to every [EndpointAddr] it turns into an [EndpointDescriptor].
type endpointPolicy struct {
	hostname       string
	tlsConfig      *tls.Config
	requestTimeout time.Duration
	connectTimeout time.Duration
	endpointLayer  func(*EndpointDescriptor) *EndpointDescriptor
	logger         *logrus.Logger
}

func (p *endpointPolicy) scheme() Scheme {
	if p.tlsConfig != nil {
		return SchemeHTTPS
	}
	return SchemeHTTP
}

func (p *endpointPolicy) logf() *logrus.Logger {
	if p.logger != nil {
		return p.logger
	}
	return logrus.StandardLogger()
}

// EndpointBuilder constructs an [*EndpointDescriptor] for addr according to
// policy, or returns nil and logs a warning if construction fails (the
// caller skips the address and the probe continues with the rest of the
// diff).
//
// When policy carries a TLS configuration, the returned descriptor's
// ServerName is rebound to policy.hostname — never the IP in addr — since
// an IP is not a valid DNS name and certificate verification would
// otherwise fail. If ConnectTimeout is unset but RequestTimeout is set, the
// request timeout is used as the connect timeout too.
func EndpointBuilder(addr EndpointAddr, policy *endpointPolicy) *EndpointDescriptor {
	host := addr.Addr().String()
	if addr.Addr().Is6() {
		host = "[" + host + "]"
	}
	scheme := policy.scheme()
	uri := fmt.Sprintf("%s://%s:%d", scheme, host, addr.Port())

	desc := &EndpointDescriptor{
		Addr:           addr,
		URI:            uri,
		Scheme:         scheme,
		RequestTimeout: policy.requestTimeout,
		ConnectTimeout: policy.connectTimeout,
	}
	if desc.ConnectTimeout == 0 && desc.RequestTimeout != 0 {
		desc.ConnectTimeout = desc.RequestTimeout
	}

	if policy.tlsConfig != nil {
		tlsConfig := policy.tlsConfig.Clone()
		tlsConfig.ServerName = policy.hostname
		desc.TLSConfig = tlsConfig
	}

	if policy.endpointLayer != nil {
		desc = policy.endpointLayer(desc)
		if desc == nil {
			policy.logf().WithFields(logrus.Fields{
				"addr": addr.String(),
				"stage": "endpoint-layer",
			}).Warn("lbchannel: endpoint layer rejected descriptor, skipping")
			return nil
		}
	}
	return desc
}
