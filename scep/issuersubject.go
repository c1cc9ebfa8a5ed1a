package scep

import "encoding/asn1"

// IssuerAndSubject is the envelope payload carried by GetCertInitial/CertPoll
// requests (messageType 20): since no certificate yet exists to reference,
// the pending enrollment is identified by the issuing CA's distinguished
// name together with the subject name originally requested (spec.md §8
// scenario 4).
//
//	IssuerAndSubject ::= SEQUENCE {
//	  issuer  Name,
//	  subject Name }
type IssuerAndSubject struct {
	Issuer  asn1.RawValue
	Subject asn1.RawValue
}

// MarshalIssuerAndSubject DER-encodes an IssuerAndSubject from the raw
// issuer and subject distinguished names (as found on an x509.Certificate's
// RawIssuer/RawSubject, or an x509.CertificateRequest's RawSubject), for use
// as an EnvelopeBuilder's plaintext content.
func MarshalIssuerAndSubject(issuerRawName, subjectRawName []byte) ([]byte, error) {
	var issuer, subject asn1.RawValue
	if _, err := asn1.Unmarshal(issuerRawName, &issuer); err != nil {
		return nil, wrapError(KindMalformedASN1, err, "parse issuer name")
	}
	if _, err := asn1.Unmarshal(subjectRawName, &subject); err != nil {
		return nil, wrapError(KindMalformedASN1, err, "parse subject name")
	}
	b, err := asn1.Marshal(IssuerAndSubject{Issuer: issuer, Subject: subject})
	if err != nil {
		return nil, wrapError(KindMalformedASN1, err, "marshal IssuerAndSubject")
	}
	return b, nil
}

// ParseIssuerAndSubject decodes the plaintext recovered from a GetCertInitial
// or CertPoll request's decrypted envelope.
func ParseIssuerAndSubject(der []byte) (*IssuerAndSubject, error) {
	var ias IssuerAndSubject
	if rest, err := asn1.Unmarshal(der, &ias); err != nil || len(rest) > 0 {
		return nil, wrapError(KindMalformedASN1, err, "parse IssuerAndSubject")
	}
	return &ias, nil
}
