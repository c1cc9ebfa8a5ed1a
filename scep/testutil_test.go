package scep

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func mustRSAKey(t *testing.T, bits int) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return key
}

func mustSelfSignedCert(t *testing.T, key *rsa.PrivateKey, cn string, serial int64) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create self-signed certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse self-signed certificate: %v", err)
	}
	return cert
}

// testIdentity bundles a self-signed certificate with its key, standing in
// for both a SCEP client and the CA/RA it enrolls against.
type testIdentity struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

func mustTestIdentity(t *testing.T, cn string, serial int64) testIdentity {
	t.Helper()
	key := mustRSAKey(t, 2048)
	cert := mustSelfSignedCert(t, key, cn, serial)
	return testIdentity{cert: cert, key: key}
}

// buildTestMessage assembles a complete, signed pkiMessage encrypted to
// recipient and signed by signer, returning its DER encoding.
func buildTestMessage(t *testing.T, signer, recipient testIdentity, mt MessageType, content []byte, extra func(*MessageBuilder)) []byte {
	t.Helper()

	env, _, _, err := NewEnvelopeBuilder().
		SetContent(content).
		SetAlgorithm(AES256CBC).
		AddRecipient(recipient.cert).
		Finalize()
	if err != nil {
		t.Fatalf("finalize envelope: %v", err)
	}

	b := NewMessageBuilder().
		SetMessageType(mt).
		SetEnvelope(env).
		AddSigner(Signer{Cert: signer.cert, Key: signer.key, Digest: SHA256})
	if extra != nil {
		extra(b)
	}

	der, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize message: %v", err)
	}
	return der
}
