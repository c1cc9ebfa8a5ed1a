package scep

import (
	"crypto/x509"
	"encoding/asn1"
)

// oidChallengePassword is PKCS#9's challengePassword, the CSR attribute
// SCEP clients use to carry the shared secret that authenticates a PKCSReq
// or RenewalReq enrollment (draft-gutmann-scep §3.2.1.1 messageType=3).
var oidChallengePassword = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 7}

// certificationRequestInfo mirrors just enough of PKCS#10's
// CertificationRequestInfo to reach the raw attributes set; parsing a CSR
// with crypto/x509 already consumes Subject and PublicKey into typed
// fields, so challengePassword extraction re-parses the TBS bytes directly.
type certificationRequestInfo struct {
	Version    int
	Subject    asn1.RawValue
	PublicKey  asn1.RawValue
	Attributes []attributeTypeAndValue `asn1:"tag:0"`
}

// attributeTypeAndValue is PKCS#10's CRIAttribute, structurally identical to
// CMS's Attribute.
type attributeTypeAndValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

// ChallengePassword extracts the PKCS#9 challengePassword attribute from a
// CSR, returning ok == false if the CSR carries none.
func ChallengePassword(csr *x509.CertificateRequest) (password string, ok bool, err error) {
	var info certificationRequestInfo
	if _, err := asn1.Unmarshal(csr.RawTBSCertificateRequest, &info); err != nil {
		return "", false, wrapError(KindMalformedASN1, err, "parse CertificationRequestInfo")
	}

	for _, attr := range info.Attributes {
		if !attr.Type.Equal(oidChallengePassword) {
			continue
		}
		var raw asn1.RawValue
		if _, err := asn1.Unmarshal(attr.Value.Bytes, &raw); err != nil {
			return "", false, wrapError(KindMalformedASN1, err, "parse challengePassword attribute value")
		}
		var s string
		if _, err := asn1.Unmarshal(raw.FullBytes, &s); err != nil {
			return "", false, wrapError(KindMalformedASN1, err, "parse challengePassword string")
		}
		return s, true, nil
	}
	return "", false, nil
}
