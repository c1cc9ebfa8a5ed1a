package scep

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"testing"
)

func TestParsePKIMessageRoundTrip(t *testing.T) {
	client := mustTestIdentity(t, "Client", 1)
	ca := mustTestIdentity(t, "CA", 2)
	content := []byte("a pretend CSR payload")

	der := buildTestMessage(t, client, ca, PKCSReq, content, func(b *MessageBuilder) {
		b.SetTransactionID("txn-1").SetRecipientNonce(RecipientNonce{1, 2, 3, 4})
	})

	msg, err := ParsePKIMessage(der)
	if err != nil {
		t.Fatalf("ParsePKIMessage: %v", err)
	}
	if msg.MessageType != PKCSReq {
		t.Fatalf("MessageType = %v, want %v", msg.MessageType, PKCSReq)
	}
	if msg.TransactionID != "txn-1" {
		t.Fatalf("TransactionID = %q, want %q", msg.TransactionID, "txn-1")
	}
	if len(msg.Signers) != 1 || !msg.Signers[0].Certificate.Equal(client.cert) {
		t.Fatalf("expected exactly one signer matching the client certificate")
	}
	if msg.State() != "verified" {
		t.Fatalf("State() = %q, want %q", msg.State(), "verified")
	}

	plaintext, err := msg.DecryptEnvelope(ca.cert, ca.key)
	if err != nil {
		t.Fatalf("DecryptEnvelope: %v", err)
	}
	if !bytes.Equal(plaintext, content) {
		t.Fatalf("decrypted content = %q, want %q", plaintext, content)
	}
	if msg.State() != "decrypted" {
		t.Fatalf("State() after decrypt = %q, want %q", msg.State(), "decrypted")
	}
}

func TestParsePKIMessageTamperedSignatureRejected(t *testing.T) {
	id := mustTestIdentity(t, "Self-signer", 1)
	der := buildTestMessage(t, id, id, PKCSReq, []byte("content"), nil)

	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		t.Fatalf("unmarshal ContentInfo: %v", err)
	}
	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		t.Fatalf("unmarshal SignedData: %v", err)
	}
	sig := sd.SignerInfos[0].Signature
	sig[len(sig)-1] ^= 0xFF

	inner, err := asn1.Marshal(sd)
	if err != nil {
		t.Fatalf("remarshal SignedData: %v", err)
	}
	tampered, err := wrapContentInfo(oidSignedData, inner)
	if err != nil {
		t.Fatalf("wrapContentInfo: %v", err)
	}

	if _, err := ParsePKIMessage(tampered); !Is(err, KindBadSignature) {
		t.Fatalf("expected KindBadSignature for a tampered signature, got %v", err)
	}
}

func TestParsePKIMessageUnverifiedSignerWhenCertMissing(t *testing.T) {
	signer := mustTestIdentity(t, "Untrusted signer", 1)
	ca := mustTestIdentity(t, "CA", 2)

	env, _, _, err := NewEnvelopeBuilder().
		SetContent([]byte("content")).
		AddRecipient(ca.cert).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize envelope: %v", err)
	}

	der, err := NewMessageBuilder().
		SetMessageType(PKCSReq).
		SetEnvelope(env).
		AddSigner(Signer{Cert: signer.cert, Key: signer.key, Digest: SHA256}).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize message: %v", err)
	}

	// Re-wrap the message without its signer certificate attached, so the
	// parser has nothing to verify the signature against.
	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		t.Fatalf("unmarshal ContentInfo: %v", err)
	}
	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		t.Fatalf("unmarshal SignedData: %v", err)
	}
	sd.Certificates = asn1.RawValue{}
	inner, err := asn1.Marshal(sd)
	if err != nil {
		t.Fatalf("remarshal SignedData: %v", err)
	}
	stripped, err := wrapContentInfo(oidSignedData, inner)
	if err != nil {
		t.Fatalf("wrapContentInfo: %v", err)
	}

	// A missing signer certificate is a non-fatal observation (spec.md §7):
	// the parse succeeds, the signer is recorded as unverified, and the
	// message's metadata (messageType here) stays readable.
	msg, err := ParsePKIMessage(stripped)
	if err != nil {
		t.Fatalf("ParsePKIMessage: %v", err)
	}
	if msg.State() != "parsed" {
		t.Fatalf("State() = %q, want %q", msg.State(), "parsed")
	}
	if len(msg.Signers) != 1 || msg.Signers[0].Verified {
		t.Fatalf("expected one unverified signer, got %+v", msg.Signers)
	}
	if len(msg.UnverifiedSigners) != 1 {
		t.Fatalf("expected one entry in UnverifiedSigners, got %d", len(msg.UnverifiedSigners))
	}
	if msg.MessageType != PKCSReq {
		t.Fatalf("MessageType = %v, want %v (metadata must survive an unverified signer)", msg.MessageType, PKCSReq)
	}

	// Supplying the certificate out of band via WithCACerts must resolve and
	// verify the signer, advancing the message to "verified".
	verified, err := ParsePKIMessage(stripped, WithCACerts([]*x509.Certificate{signer.cert}))
	if err != nil {
		t.Fatalf("ParsePKIMessage with WithCACerts: %v", err)
	}
	if len(verified.UnverifiedSigners) != 0 {
		t.Fatalf("expected no unverified signers once WithCACerts supplies the certificate")
	}
	if len(verified.Signers) != 1 || !verified.Signers[0].Verified {
		t.Fatalf("expected one verified signer via WithCACerts")
	}
	if verified.State() != "verified" {
		t.Fatalf("State() = %q, want %q", verified.State(), "verified")
	}
}

func TestDecryptEnvelopeUnknownRecipient(t *testing.T) {
	intended := mustTestIdentity(t, "Intended Recipient", 1)
	other := mustTestIdentity(t, "Other Party", 2)
	signer := mustTestIdentity(t, "Signer", 3)

	der := buildTestMessage(t, signer, intended, PKCSReq, []byte("secret"), nil)
	msg, err := ParsePKIMessage(der)
	if err != nil {
		t.Fatalf("ParsePKIMessage: %v", err)
	}

	if _, err := msg.DecryptEnvelope(other.cert, other.key); !Is(err, KindUnknownRecipient) {
		t.Fatalf("expected KindUnknownRecipient, got %v", err)
	}
}

func TestExtractSCEPAttributesRejectsMissingFailInfo(t *testing.T) {
	scepAttrs := newScepAttributes()
	scepAttrs.set("pkiStatus", string(FAILURE))
	attrs, err := scepAttrs.toAttributes(NewOIDRegistry())
	if err != nil {
		t.Fatalf("toAttributes: %v", err)
	}
	if _, err := extractSCEPAttributes(NewOIDRegistry(), attrs); !Is(err, KindMissingFailInfo) {
		t.Fatalf("expected KindMissingFailInfo, got %v", err)
	}
}
