package scep

import (
	"crypto/rand"
	"crypto/x509"
	"io"

	"github.com/go-kit/kit/log"
)

// config holds the options shared by EnvelopeBuilder, MessageBuilder, and
// MessageParser, following the teacher's functional-options pattern.
type config struct {
	logger  log.Logger
	caCerts []*x509.Certificate
	rand    io.Reader
}

// newConfig returns a config carrying the shared defaults: a nop logger and
// crypto/rand.Reader as the randomness source.
func newConfig() *config {
	return &config{logger: log.NewNopLogger(), rand: rand.Reader}
}

// Option configures a builder or parser.
type Option func(*config)

// WithLogger adds structured logging to the core operation it configures.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCACerts supplies additional certificates for MessageParser signature
// verification. A signer certificate is looked up first in the
// SignedData.certificates attached to the parsed message and then in this
// set; the attached certificates are still used. This mirrors the teacher's
// WithCACerts option, used when the caller already retrieved CA/RA
// certificates out of band (e.g. via GetCACert) or the peer did not attach
// its signer certificate.
func WithCACerts(caCerts []*x509.Certificate) Option {
	return func(c *config) {
		c.caCerts = caCerts
	}
}

// WithRand overrides the source of cryptographic randomness used for nonce
// and transaction-id generation, content-encryption key/IV generation, and
// RSA key-transport encryption. Defaults to crypto/rand.Reader. Spec.md §5
// models randomness as an injected provider rather than a hardcoded global,
// so tests can substitute a deterministic reader and assert byte-exact
// reproducible output (spec.md §8).
func WithRand(r io.Reader) Option {
	return func(c *config) {
		c.rand = r
	}
}
