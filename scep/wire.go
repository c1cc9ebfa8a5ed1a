package scep

import (
	"bytes"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"sort"
)

// contentInfo is the outermost CMS wrapper.
//
//	ContentInfo ::= SEQUENCE {
//	  contentType ContentType,
//	  content     [0] EXPLICIT ANY DEFINED BY contentType OPTIONAL }
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

func wrapContentInfo(contentType asn1.ObjectIdentifier, content []byte) ([]byte, error) {
	ci := contentInfo{
		ContentType: contentType,
		Content:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: content},
	}
	return asn1.Marshal(ci)
}

// signedData is RFC 5652's SignedData, restricted to what SCEP uses: no
// CRLs in practice, certificates carried as a raw SET (so unknown extension
// fields on exotic peer certificates round-trip untouched).
//
//	SignedData ::= SEQUENCE {
//	  version          CMSVersion,
//	  digestAlgorithms DigestAlgorithmIdentifiers,
//	  encapContentInfo EncapsulatedContentInfo,
//	  certificates     [0] IMPLICIT CertificateSet OPTIONAL,
//	  crls             [1] IMPLICIT RevocationInfoChoices OPTIONAL,
//	  signerInfos      SignerInfos }
type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo contentInfo
	Certificates     asn1.RawValue  `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue  `asn1:"optional,tag:1"`
	SignerInfos      []rawSignerInfo `asn1:"set"`
}

// issuerAndSerial is CMS's IssuerAndSerialNumber.
//
//	IssuerAndSerialNumber ::= SEQUENCE {
//	  issuer       Name,
//	  serialNumber CertificateSerialNumber }
type issuerAndSerial struct {
	IssuerName   asn1.RawValue
	SerialNumber *big.Int
}

// rawSignerInfo mirrors SignerInfo but keeps the SignerIdentifier CHOICE as
// a RawValue so both IssuerAndSerialNumber and the [0] SubjectKeyIdentifier
// alternative can be read without committing to one Go struct shape.
//
//	SignerInfo ::= SEQUENCE {
//	  version            CMSVersion,
//	  sid                SignerIdentifier,
//	  digestAlgorithm    DigestAlgorithmIdentifier,
//	  signedAttrs        [0] IMPLICIT SignedAttributes OPTIONAL,
//	  signatureAlgorithm SignatureAlgorithmIdentifier,
//	  signature          SignatureValue,
//	  unsignedAttrs      [1] IMPLICIT UnsignedAttributes OPTIONAL }
type rawSignerInfo struct {
	Version            int
	SID                asn1.RawValue
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        []attribute `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      []attribute `asn1:"optional,tag:1,set"`
}

// attribute is CMS's Attribute, used both for SignedAttrs and for the
// re-parsed, always-a-SET-OF form used when hashing signed attributes for
// signature computation.
//
//	Attribute ::= SEQUENCE {
//	  attrType   OBJECT IDENTIFIER,
//	  attrValues SET OF AttributeValue }
type attribute struct {
	Type asn1.ObjectIdentifier
	// Value is constructed manually (Class/Tag/IsCompound/Bytes set by
	// makeAttribute) as a universal SET containing one AttributeValue; no
	// struct tag is applied here since a RawValue's own fields already
	// determine its encoding.
	Value asn1.RawValue
}

// derEncodeSignedAttrsForSigning re-tags a SignedAttrs slice as an explicit
// SET OF for DER encoding ahead of hashing/signing. RFC 5652 §5.4 requires
// the signature to cover the DER re-encoding of the attributes as a SET, not
// the [0] IMPLICIT form used on the wire.
func derEncodeSignedAttrsForSigning(attrs []attribute) ([]byte, error) {
	return asn1.MarshalWithParams(attrs, "set")
}

// envelopedData is RFC 5652's EnvelopedData, restricted to KeyTransRecipientInfo.
//
//	EnvelopedData ::= SEQUENCE {
//	  version              CMSVersion,
//	  recipientInfos       RecipientInfos,
//	  encryptedContentInfo EncryptedContentInfo }
type envelopedData struct {
	Version              int
	RecipientInfos       []recipientInfo `asn1:"set"`
	EncryptedContentInfo encryptedContentInfo
}

// recipientInfo is CMS's KeyTransRecipientInfo, restricted to the IAS
// recipient-identification choice (spec.md §1 non-goals).
//
//	KeyTransRecipientInfo ::= SEQUENCE {
//	  version                CMSVersion,  -- always set to 0
//	  rid                    IssuerAndSerialNumber,
//	  keyEncryptionAlgorithm KeyEncryptionAlgorithmIdentifier,
//	  encryptedKey           EncryptedKey }
type recipientInfo struct {
	Version                int
	IssuerAndSerialNumber  issuerAndSerial
	KeyEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedKey           []byte
}

// encryptedContentInfo is CMS's EncryptedContentInfo.
//
//	EncryptedContentInfo ::= SEQUENCE {
//	  contentType                ContentType,
//	  contentEncryptionAlgorithm ContentEncryptionAlgorithmIdentifier,
//	  encryptedContent           [0] IMPLICIT EncryptedContent OPTIONAL }
type encryptedContentInfo struct {
	ContentType                asn1.ObjectIdentifier
	ContentEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedContent           asn1.RawValue `asn1:"tag:0,optional"`
}

func marshalEncryptedContent(ciphertext []byte) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: ciphertext}
}

// attributeSorter sorts a slice of DER-encoded attributes by their encoded
// bytes, as DER requires for a SET OF (shortest-lexicographic, component-wise).
type sortableAttr struct {
	encoded []byte
	attr    attribute
}

type attributeSorter []sortableAttr

func (s attributeSorter) Len() int           { return len(s) }
func (s attributeSorter) Less(i, j int) bool { return bytes.Compare(s[i].encoded, s[j].encoded) < 0 }
func (s attributeSorter) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// sortAttributesForDER re-sorts attrs into canonical DER SET OF order
// (shortest-lexicographic over each attribute's own encoding). Both the
// signature computation and the wire SignedAttrs field use this order, per
// spec.md §4.4 step 3; callers should not assume insertion order survives.
func sortAttributesForDER(attrs []attribute) ([]attribute, error) {
	sortable := make(attributeSorter, len(attrs))
	for i, a := range attrs {
		encoded, err := asn1.Marshal(a)
		if err != nil {
			return nil, err
		}
		sortable[i] = sortableAttr{encoded: encoded, attr: a}
	}
	sort.Sort(sortable)
	out := make([]attribute, len(sortable))
	for i, s := range sortable {
		out[i] = s.attr
	}
	return out, nil
}

func issuerAndSerialFromCert(certRawIssuer []byte, serial *big.Int) (issuerAndSerial, error) {
	var issuer asn1.RawValue
	if _, err := asn1.Unmarshal(certRawIssuer, &issuer); err != nil {
		return issuerAndSerial{}, wrapError(KindMalformedASN1, err, "parse certificate issuer name")
	}
	return issuerAndSerial{IssuerName: issuer, SerialNumber: serial}, nil
}
