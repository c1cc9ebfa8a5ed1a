package scep

import (
	"crypto/x509"
	"encoding/asn1"
	"testing"
)

// marshalTestTBS builds a minimal CertificationRequestInfo DER carrying the
// given attributes. ChallengePassword only ever reads
// RawTBSCertificateRequest, so the Subject/PublicKey fields below don't need
// to be valid Name/SubjectPublicKeyInfo encodings, just well-formed ASN.1.
func marshalTestTBS(t *testing.T, attrs []attributeTypeAndValue) []byte {
	t.Helper()
	placeholder := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true}
	info := certificationRequestInfo{
		Version:    0,
		Subject:    placeholder,
		PublicKey:  placeholder,
		Attributes: attrs,
	}
	tbs, err := asn1.Marshal(info)
	if err != nil {
		t.Fatalf("marshal CertificationRequestInfo: %v", err)
	}
	return tbs
}

func TestChallengePasswordExtraction(t *testing.T) {
	pwdValue, err := asn1.Marshal("s3cr3t")
	if err != nil {
		t.Fatalf("marshal challengePassword string: %v", err)
	}
	attr := attributeTypeAndValue{
		Type:  oidChallengePassword,
		Value: asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: pwdValue},
	}

	csr := &x509.CertificateRequest{RawTBSCertificateRequest: marshalTestTBS(t, []attributeTypeAndValue{attr})}

	password, ok, err := ChallengePassword(csr)
	if err != nil {
		t.Fatalf("ChallengePassword: %v", err)
	}
	if !ok {
		t.Fatalf("expected challengePassword attribute to be found")
	}
	if password != "s3cr3t" {
		t.Fatalf("password = %q, want %q", password, "s3cr3t")
	}
}

func TestChallengePasswordAbsent(t *testing.T) {
	csr := &x509.CertificateRequest{RawTBSCertificateRequest: marshalTestTBS(t, nil)}

	_, ok, err := ChallengePassword(csr)
	if err != nil {
		t.Fatalf("ChallengePassword: %v", err)
	}
	if ok {
		t.Fatalf("expected no challengePassword attribute to be found")
	}
}
