package scep

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"math/big"
)

// MessageType is the SCEP messageType signed attribute value.
type MessageType string

// Defined SCEP message types (draft-gutmann-scep §3.2.1.1).
const (
	PKCSReq       MessageType = "3"
	RenewalReq    MessageType = "17"
	UpdateReq     MessageType = "19"
	CertPoll      MessageType = "20"
	GetCertInitial MessageType = "20"
	CertRep       MessageType = "22"
)

func (m MessageType) String() string {
	switch m {
	case PKCSReq:
		return "PKCSReq (3)"
	case RenewalReq:
		return "RenewalReq (17)"
	case UpdateReq:
		return "UpdateReq (19)"
	case CertPoll:
		return "CertPoll/GetCertInitial (20)"
	case CertRep:
		return "CertRep (22)"
	default:
		return "unknown messageType " + string(m)
	}
}

// PKIStatus is the SCEP pkiStatus signed attribute value.
type PKIStatus string

// Defined SCEP pkiStatus values.
const (
	SUCCESS PKIStatus = "0"
	FAILURE PKIStatus = "2"
	PENDING PKIStatus = "3"
)

// FailInfo is the SCEP failInfo signed attribute value, required whenever
// pkiStatus is FAILURE.
type FailInfo string

// Defined SCEP failInfo values.
const (
	BadAlg          FailInfo = "0"
	BadMessageCheck FailInfo = "1"
	BadRequest      FailInfo = "2"
	BadTime         FailInfo = "3"
	BadCertID       FailInfo = "4"
)

// SenderNonce is a random 16-octet value a sender includes on every message
// in a transaction.
type SenderNonce []byte

// RecipientNonce echoes the originating message's SenderNonce back to it.
type RecipientNonce []byte

// TransactionID is the printable string identifying a SCEP transaction.
type TransactionID string

// DigestAlgorithm selects the message-digest algorithm a Signer uses for
// both the message-digest attribute and the signed-attributes signature.
type DigestAlgorithm string

// Supported digest algorithms (spec.md §3).
const (
	SHA1   DigestAlgorithm = "sha1"
	SHA256 DigestAlgorithm = "sha256"
	SHA512 DigestAlgorithm = "sha512"
)

// ContentEncryptionAlgorithm selects the symmetric cipher an EnvelopeBuilder
// uses for EncryptedContentInfo.
type ContentEncryptionAlgorithm string

// Supported content-encryption algorithms (spec.md §3). DES3CBC is the
// default, for compatibility with legacy SCEP peers such as NDES.
const (
	DES3CBC   ContentEncryptionAlgorithm = "3des-cbc"
	AES128CBC ContentEncryptionAlgorithm = "aes-128-cbc"
	AES256CBC ContentEncryptionAlgorithm = "aes-256-cbc"
)

func (a ContentEncryptionAlgorithm) keySize() int {
	switch a {
	case DES3CBC:
		return 24
	case AES128CBC:
		return 16
	case AES256CBC:
		return 32
	default:
		return 0
	}
}

func (a ContentEncryptionAlgorithm) blockSize() int {
	switch a {
	case DES3CBC:
		return 8
	case AES128CBC, AES256CBC:
		return 16
	default:
		return 0
	}
}

// Signer owns the certificate, private key, and digest choice used to
// produce one SignerInfo. A Signer is consumed once by MessageBuilder.Finalize.
type Signer struct {
	Cert   *x509.Certificate
	Key    *rsa.PrivateKey
	Digest DigestAlgorithm
}

// Recipient is a certificate an EnvelopeBuilder encrypts the symmetric
// content-encryption key to. Only the RSA public key is used.
type Recipient struct {
	Cert *x509.Certificate
}

// SignerIdentifier is the decoded form of CMS's SignerIdentifier CHOICE.
// The core only ever emits the IssuerAndSerial form, but the parser accepts
// both (spec.md §9 redesign flag).
type SignerIdentifier struct {
	IsSubjectKeyID bool

	// Set when IsSubjectKeyID is false.
	IssuerRawName []byte
	SerialNumber  *big.Int

	// Set when IsSubjectKeyID is true.
	SubjectKeyID []byte
}

// MatchesCertificate reports whether cert is the certificate identified by sid.
func (sid SignerIdentifier) MatchesCertificate(cert *x509.Certificate) bool {
	if sid.IsSubjectKeyID {
		for _, ext := range cert.Extensions {
			if !ext.Id.Equal(oidSubjectKeyIdentifier) {
				continue
			}
			// ext.Value is the extnValue OCTET STRING's content, which for
			// SubjectKeyIdentifier is itself a DER OCTET STRING (RFC 5280
			// §4.2.1.2) wrapping the raw key identifier. sid.SubjectKeyID
			// came from an implicitly-tagged CHOICE and is already the raw
			// identifier, so the certificate's extension value must be
			// unwrapped one layer before comparing.
			var ski []byte
			if _, err := asn1.Unmarshal(ext.Value, &ski); err != nil {
				return false
			}
			return bytes.Equal(ski, sid.SubjectKeyID)
		}
		return false
	}
	return sid.SerialNumber != nil &&
		cert.SerialNumber.Cmp(sid.SerialNumber) == 0 &&
		bytes.Equal(cert.RawIssuer, sid.IssuerRawName)
}
