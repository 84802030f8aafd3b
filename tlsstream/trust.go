package tlsstream

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/DitchOoM/socket-sub001/sockerr"
)

// linuxCABundlePaths is the §6 CA trust discovery order for the Linux
// backend: first readable path wins.
var linuxCABundlePaths = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/etc/ssl/ca-bundle.pem",
	"/etc/ssl/cert.pem",
}

// loadSystemTrust reads the first readable bundle from
// linuxCABundlePaths and returns a cert pool seeded with it. Failure to
// load any bundle is a fatal Configuration error, per §4.C.
func loadSystemTrust() (*x509.CertPool, error) {
	for _, path := range linuxCABundlePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM(data) {
			return pool, nil
		}
	}
	return nil, sockerr.New(sockerr.Configuration, "no readable CA bundle found")
}

// trustAllVerify is installed together with tls.Config.InsecureSkipVerify
// when a stream is configured insecure. InsecureSkipVerify is what turns
// off crypto/tls's own chain verification; this callback accepts every
// peer certificate and adds no check of its own.
func trustAllVerify([][]byte, [][]*x509.Certificate) error { return nil }

// buildTLSConfig assembles the tls.Config for a handshake: protocol
// preference (1.3, falling back to 1.2), SNI, and the CA trust policy.
func buildTLSConfig(hostname string, opts Options) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: hostname,
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}
	if len(opts.NextProtos) > 0 {
		cfg.NextProtos = opts.NextProtos
	}
	if opts.Insecure {
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = trustAllVerify
		return cfg, nil
	}
	pool, err := loadSystemTrust()
	if err != nil {
		return nil, err
	}
	cfg.RootCAs = pool
	return cfg, nil
}
