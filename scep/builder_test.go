package scep

import "testing"

func TestMessageBuilderRequiresSigner(t *testing.T) {
	env, _, _, err := NewEnvelopeBuilder().
		SetContent([]byte("x")).
		AddRecipient(mustTestIdentity(t, "R", 1).cert).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize envelope: %v", err)
	}

	_, err = NewMessageBuilder().SetEnvelope(env).SetMessageType(PKCSReq).Finalize()
	if !Is(err, KindNoSigners) {
		t.Fatalf("expected KindNoSigners, got %v", err)
	}
}

func TestMessageBuilderRequiresEnvelope(t *testing.T) {
	signer := mustTestIdentity(t, "Signer", 1)
	_, err := NewMessageBuilder().
		SetMessageType(PKCSReq).
		AddSigner(Signer{Cert: signer.cert, Key: signer.key, Digest: SHA256}).
		Finalize()
	if !Is(err, KindMalformedASN1) {
		t.Fatalf("expected KindMalformedASN1 for missing envelope, got %v", err)
	}
}

func TestMessageBuilderMissingFailInfoRejected(t *testing.T) {
	ca := mustTestIdentity(t, "CA", 1)
	env, _, _, err := NewEnvelopeBuilder().
		SetContent([]byte("irrelevant for a failure response")).
		AddRecipient(ca.cert).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize envelope: %v", err)
	}

	_, err = NewMessageBuilder().
		SetMessageType(CertRep).
		SetPKIStatus(FAILURE).
		SetEnvelope(env).
		AddSigner(Signer{Cert: ca.cert, Key: ca.key, Digest: SHA256}).
		Finalize()
	if !Is(err, KindMissingFailInfo) {
		t.Fatalf("expected KindMissingFailInfo, got %v", err)
	}
}

func TestMessageBuilderRejectsMixedSignerDigests(t *testing.T) {
	ca := mustTestIdentity(t, "CA", 1)
	ra := mustTestIdentity(t, "RA", 2)
	env, _, _, err := NewEnvelopeBuilder().
		SetContent([]byte("content")).
		AddRecipient(ca.cert).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize envelope: %v", err)
	}

	_, err = NewMessageBuilder().
		SetMessageType(PKCSReq).
		SetEnvelope(env).
		AddSigner(Signer{Cert: ca.cert, Key: ca.key, Digest: SHA256}).
		AddSigner(Signer{Cert: ra.cert, Key: ra.key, Digest: SHA1}).
		Finalize()
	if !Is(err, KindUnsupportedAlgorithm) {
		t.Fatalf("expected KindUnsupportedAlgorithm for mixed signer digests, got %v", err)
	}
}

func TestMessageBuilderFinalizeDefaultsNonceAndTransactionID(t *testing.T) {
	ca := mustTestIdentity(t, "CA", 1)
	der := buildTestMessage(t, ca, ca, PKCSReq, []byte("csr bytes"), nil)

	msg, err := ParsePKIMessage(der)
	if err != nil {
		t.Fatalf("ParsePKIMessage: %v", err)
	}
	if len(msg.SenderNonce) != nonceSize {
		t.Fatalf("SenderNonce length = %d, want %d", len(msg.SenderNonce), nonceSize)
	}
	if msg.TransactionID == "" {
		t.Fatalf("TransactionID was not defaulted")
	}
}
