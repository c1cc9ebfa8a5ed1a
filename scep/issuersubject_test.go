package scep

import "testing"

func TestIssuerAndSubjectRoundTrip(t *testing.T) {
	ca := mustTestIdentity(t, "Test CA", 1)
	client := mustTestIdentity(t, "Test Client", 2)

	der, err := MarshalIssuerAndSubject(ca.cert.RawSubject, client.cert.RawSubject)
	if err != nil {
		t.Fatalf("MarshalIssuerAndSubject: %v", err)
	}

	got, err := ParseIssuerAndSubject(der)
	if err != nil {
		t.Fatalf("ParseIssuerAndSubject: %v", err)
	}
	if string(got.Issuer.FullBytes) != string(ca.cert.RawSubject) {
		t.Fatalf("Issuer bytes do not match input")
	}
	if string(got.Subject.FullBytes) != string(client.cert.RawSubject) {
		t.Fatalf("Subject bytes do not match input")
	}
}

func TestIssuerAndSubjectInsideEnvelope(t *testing.T) {
	ca := mustTestIdentity(t, "Test CA", 1)
	client := mustTestIdentity(t, "Test Client", 2)

	payload, err := MarshalIssuerAndSubject(ca.cert.RawSubject, client.cert.RawSubject)
	if err != nil {
		t.Fatalf("MarshalIssuerAndSubject: %v", err)
	}

	der := buildTestMessage(t, client, ca, GetCertInitial, payload, func(b *MessageBuilder) {
		b.SetTransactionID("poll-txn")
	})

	msg, err := ParsePKIMessage(der)
	if err != nil {
		t.Fatalf("ParsePKIMessage: %v", err)
	}
	if msg.MessageType != GetCertInitial {
		t.Fatalf("MessageType = %v, want %v", msg.MessageType, GetCertInitial)
	}

	plaintext, err := msg.DecryptEnvelope(ca.cert, ca.key)
	if err != nil {
		t.Fatalf("DecryptEnvelope: %v", err)
	}

	ias, err := ParseIssuerAndSubject(plaintext)
	if err != nil {
		t.Fatalf("ParseIssuerAndSubject: %v", err)
	}
	if string(ias.Issuer.FullBytes) != string(ca.cert.RawSubject) {
		t.Fatalf("round-tripped issuer does not match")
	}
}
