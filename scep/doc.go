// Package scep builds and parses Simple Certificate Enrolment Protocol
// pkiMessage structures as defined by https://tools.ietf.org/html/draft-gutmann-scep-02.
//
// A pkiMessage is a CMS SignedData container whose signed payload is itself a
// CMS EnvelopedData carrying an encrypted inner object: a PKCS#10 certificate
// request, an issued certificate chain in degenerate PKCS#7 form, or status
// metadata. This package builds those messages outbound and parses, verifies
// and decrypts them inbound, preserving bit-exact ASN.1 DER encoding.
//
// It does not implement SCEP's HTTP transport, CA issuance policy, or any
// persistence; those are the caller's responsibility.
package scep
