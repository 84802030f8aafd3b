package tlsstream

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DitchOoM/socket-sub001/config"
	"github.com/DitchOoM/socket-sub001/internal/uring"
)

// selfSignedCert builds an ephemeral certificate for "127.0.0.1" so the
// test TLS server doesn't depend on any file on disk.
func selfSignedCert(t *testing.T) tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// TestHandshakeAndEchoRoundTrip connects our suspension-based Stream to
// a plain stdlib crypto/tls server (server-side TLS is out of scope for
// this core), verifying the handshake completes and plaintext survives
// a write/read round trip.
func TestHandshakeAndEchoRoundTrip(t *testing.T) {
	config.Reset()
	defer uring.Cleanup()

	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			done <- err
			return
		}
		_, err = conn.Write(buf)
		done <- err
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	stream, err := Open(context.Background(), port, "127.0.0.1", 2*time.Second, Options{Insecure: true})
	require.NoError(t, err)
	defer stream.Close()

	n, err := stream.Write(context.Background(), []byte("hello"), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	echoed, err := stream.Read(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello", string(echoed))

	require.NoError(t, <-done)
}
