package scep

import (
	"crypto/x509"
	"encoding/asn1"
)

// WrapDegenerateCerts builds the degenerate PKCS#7 SignedData used to carry
// a bare certificate chain, per draft-gutmann-scep §3.4: a SignedData with
// no signers, used purely as a certificate envelope for successful CertRep
// responses and GetCACert replies. certs must be non-empty; the first
// certificate is conventionally the newly issued certificate for the
// requester.
//
// The returned bytes are the DER encoding of the outer ContentInfo.
func WrapDegenerateCerts(certs []*x509.Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, newError(KindMalformedASN1, "wrap degenerate certs: no certificates supplied")
	}

	certSet, err := marshalCertificateSet(certs)
	if err != nil {
		return nil, wrapError(KindMalformedASN1, err, "marshal certificate set")
	}

	sd := signedData{
		Version:          1,
		DigestAlgorithms: nil,
		// eContent MUST be absent, not an empty OCTET STRING (spec.md §4.2).
		EncapContentInfo: contentInfo{ContentType: oidData},
		Certificates:     certSet,
		SignerInfos:      []rawSignerInfo{},
	}

	inner, err := asn1.Marshal(sd)
	if err != nil {
		return nil, wrapError(KindMalformedASN1, err, "marshal degenerate SignedData")
	}

	return wrapContentInfo(oidSignedData, inner)
}

// marshalCertificateSet DER-encodes certs as the [0] IMPLICIT CertificateSet
// field of SignedData: a SET OF Certificate, but since x509.Certificate is
// itself a full SEQUENCE whose raw bytes we already have, we splice the raw
// DER together under the single [0] tag that replaces the SET tag, rather
// than re-marshal each cert.
func marshalCertificateSet(certs []*x509.Certificate) (asn1.RawValue, error) {
	var body []byte
	for _, c := range certs {
		body = append(body, c.Raw...)
	}
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: body}, nil
}

// ParseDegenerateCerts extracts the certificate chain from a degenerate
// PKCS#7 SignedData's DER encoding (the inverse of WrapDegenerateCerts).
func ParseDegenerateCerts(der []byte) ([]*x509.Certificate, error) {
	var ci contentInfo
	if rest, err := asn1.Unmarshal(der, &ci); err != nil || len(rest) > 0 {
		return nil, newError(KindMalformedASN1, "parse degenerate ContentInfo")
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, newError(KindMalformedASN1, "degenerate content is not signedData")
	}

	var sd signedData
	if rest, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil || len(rest) > 0 {
		return nil, wrapError(KindMalformedASN1, err, "parse degenerate SignedData")
	}

	return parseCertificateSet(sd.Certificates)
}

func parseCertificateSet(raw asn1.RawValue) ([]*x509.Certificate, error) {
	if len(raw.Bytes) == 0 {
		return nil, nil
	}
	certs, err := x509.ParseCertificates(raw.Bytes)
	if err != nil {
		return nil, wrapError(KindMalformedASN1, err, "parse certificate set")
	}
	return certs, nil
}
