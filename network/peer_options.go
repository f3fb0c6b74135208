package network

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"time"
)

// PeerOption configures a Peer before it starts serving.
type PeerOption func(*Peer)

// WithTimeout bounds blocking receives and delivery attempts.
// Zero, the default, waits forever.
func WithTimeout(timeout time.Duration) PeerOption {
	return func(p *Peer) {
		p.timeout = timeout
		p.client.Timeout = timeout
	}
}

// WithRetryInterval sets the pause between delivery attempts to a peer
// that is not listening yet.
func WithRetryInterval(d time.Duration) PeerOption {
	return func(p *Peer) {
		p.retry = d
	}
}

func WithLogger(logger *slog.Logger) PeerOption {
	return func(p *Peer) {
		p.logger = logger
	}
}

// WithCertificate serves and dials over TLS with cert.
func WithCertificate(cert tls.Certificate) PeerOption {
	return func(p *Peer) {
		if p.tlsConfig == nil {
			p.tlsConfig = &tls.Config{}
		}
		p.tlsConfig.Certificates = append(p.tlsConfig.Certificates, cert)
		p.client.Transport = &http.Transport{
			TLSClientConfig: p.tlsConfig,
		}
	}
}

// WithLimitedCAs only trusts peers whose certificates are signed by the
// given pool, in both directions.
func WithLimitedCAs(certPool *x509.CertPool) PeerOption {
	return func(p *Peer) {
		if p.tlsConfig == nil {
			p.tlsConfig = &tls.Config{}
		}
		p.tlsConfig.RootCAs = certPool
		p.tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		p.tlsConfig.ClientCAs = certPool
		p.client.Transport = &http.Transport{
			TLSClientConfig: p.tlsConfig,
		}
	}
}
