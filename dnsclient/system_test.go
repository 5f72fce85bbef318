// SPDX-License-Identifier: GPL-3.0-or-later

package dnsclient

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/require"
)

func writeResolvConf(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestSystemTransportsBuildsOneUDPTransportPerNameserver(t *testing.T) {
	path := writeResolvConf(t, "nameserver 9.9.9.9\nnameserver 149.112.112.112\n")
	transports, err := SystemTransports(&netstub.FuncDialer{}, path)
	require.NoError(t, err)
	require.Len(t, transports, 2)
	for _, transport := range transports {
		_, ok := transport.(*UDPTransport)
		require.True(t, ok, "expected *UDPTransport, got %T", transport)
	}
}

func TestSystemTransportsRejectsMissingFile(t *testing.T) {
	_, err := SystemTransports(&netstub.FuncDialer{}, filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestSystemTransportsRejectsEmptyNameserverList(t *testing.T) {
	path := writeResolvConf(t, "")
	_, err := SystemTransports(&netstub.FuncDialer{}, path)
	require.Error(t, err)
}

// TestSecureSystemTransportsOrdersQUICThenTLSThenUDP verifies SecureSystemTransports
// builds, per nameserver, a [*QUICTransport] and a [*StreamTransport] authenticated
// with the caller's TLS config, with a plain [*UDPTransport] as the last-resort
// fallback — in that order, since [*Client] tries transports sequentially.
func TestSecureSystemTransportsOrdersQUICThenTLSThenUDP(t *testing.T) {
	path := writeResolvConf(t, "nameserver 1.1.1.1\nnameserver 8.8.8.8\n")
	tlsConfig := &tls.Config{ServerName: "example.com"}
	transports, err := SecureSystemTransports(&netstub.FuncDialer{}, path, tlsConfig)
	require.NoError(t, err)
	require.Len(t, transports, 6)

	for i := 0; i < len(transports); i += 3 {
		quicTransport, ok := transports[i].(*QUICTransport)
		require.True(t, ok, "transport %d: expected *QUICTransport, got %T", i, transports[i])
		dialConfig, ok := quicTransport.Dialer.(*QUICDialConfig)
		require.True(t, ok)
		require.Equal(t, "example.com", dialConfig.TLSConfig.ServerName)

		streamTransport, ok := transports[i+1].(*StreamTransport)
		require.True(t, ok, "transport %d: expected *StreamTransport, got %T", i+1, transports[i+1])
		tlsDialer, ok := streamTransport.Dialer.(*tls.Dialer)
		require.True(t, ok)
		require.Equal(t, "example.com", tlsDialer.Config.ServerName)

		_, ok = transports[i+2].(*UDPTransport)
		require.True(t, ok, "transport %d: expected *UDPTransport, got %T", i+2, transports[i+2])
	}
}

func TestSecureSystemTransportsDefaultsTLSConfig(t *testing.T) {
	path := writeResolvConf(t, "nameserver 1.1.1.1\n")
	transports, err := SecureSystemTransports(&netstub.FuncDialer{}, path, nil)
	require.NoError(t, err)
	require.Len(t, transports, 3)
}
