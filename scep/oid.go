package scep

import "encoding/asn1"

// CMS content-type and attribute OIDs (RFC 5652, RFC 2315).
var (
	oidData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidEnvelopedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}

	oidAttributeContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidAttributeMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}

	oidSubjectKeyIdentifier = asn1.ObjectIdentifier{2, 5, 29, 14}
)

// Digest algorithm OIDs.
var (
	oidDigestSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidDigestSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidDigestSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

// Signature and key-transport algorithm OIDs. The core only ever produces
// and accepts PKCS#1 v1.5 RSA (spec.md §1 non-goals exclude key-agreement
// recipients and signer identification beyond IssuerAndSerialNumber on the
// builder side).
var (
	oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
)

// Content-encryption algorithm OIDs.
var (
	oidDESEDE3CBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 3, 7}
	oidAES128CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES256CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
)

// SCEP's custom signed attribute OIDs (draft-gutmann-scep §3.2).
var (
	oidSCEPmessageType    = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 2}
	oidSCEPpkiStatus      = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 3}
	oidSCEPfailInfo       = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 4}
	oidSCEPsenderNonce    = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 5}
	oidSCEPrecipientNonce = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 6}
	oidSCEPtransactionID  = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 7}
)

// OIDRegistry maps SCEP signed-attribute names to their OIDs and back. The
// original source installed these OIDs onto a package-level (and in some
// ports, class-level) mutable field, which is process-wide global state.
// Here the registry is built once per codec and threaded explicitly through
// MessageBuilder and MessageParser instead.
type OIDRegistry struct {
	byName map[string]asn1.ObjectIdentifier
	byOID  map[string]string
}

// NewOIDRegistry constructs a registry pre-loaded with the six SCEP signed
// attributes. Callers needing additional vendor attributes can extend the
// returned registry with Register before using it.
func NewOIDRegistry() *OIDRegistry {
	r := &OIDRegistry{
		byName: make(map[string]asn1.ObjectIdentifier, 8),
		byOID:  make(map[string]string, 8),
	}
	r.Register("messageType", oidSCEPmessageType)
	r.Register("pkiStatus", oidSCEPpkiStatus)
	r.Register("failInfo", oidSCEPfailInfo)
	r.Register("senderNonce", oidSCEPsenderNonce)
	r.Register("recipientNonce", oidSCEPrecipientNonce)
	r.Register("transactionID", oidSCEPtransactionID)
	return r
}

// Register adds or overwrites a named OID mapping.
func (r *OIDRegistry) Register(name string, oid asn1.ObjectIdentifier) {
	r.byName[name] = oid
	r.byOID[oid.String()] = name
}

// OID returns the OID registered under name.
func (r *OIDRegistry) OID(name string) (asn1.ObjectIdentifier, bool) {
	oid, ok := r.byName[name]
	return oid, ok
}

// Name returns the name registered for oid. Unknown OIDs report ok == false;
// callers must preserve such attributes opaquely rather than dropping them
// (spec.md §4.1).
func (r *OIDRegistry) Name(oid asn1.ObjectIdentifier) (string, bool) {
	name, ok := r.byOID[oid.String()]
	return name, ok
}

func digestOIDForAlgorithm(alg DigestAlgorithm) (asn1.ObjectIdentifier, error) {
	switch alg {
	case SHA1:
		return oidDigestSHA1, nil
	case SHA256:
		return oidDigestSHA256, nil
	case SHA512:
		return oidDigestSHA512, nil
	default:
		return nil, newError(KindUnsupportedAlgorithm, "unsupported digest algorithm")
	}
}

func digestAlgorithmForOID(oid asn1.ObjectIdentifier) (DigestAlgorithm, error) {
	switch {
	case oid.Equal(oidDigestSHA1):
		return SHA1, nil
	case oid.Equal(oidDigestSHA256):
		return SHA256, nil
	case oid.Equal(oidDigestSHA512):
		return SHA512, nil
	default:
		return "", newError(KindUnsupportedAlgorithm, "unsupported digest algorithm OID "+oid.String())
	}
}

func contentEncryptionOIDForAlgorithm(alg ContentEncryptionAlgorithm) (asn1.ObjectIdentifier, error) {
	switch alg {
	case DES3CBC:
		return oidDESEDE3CBC, nil
	case AES128CBC:
		return oidAES128CBC, nil
	case AES256CBC:
		return oidAES256CBC, nil
	default:
		return nil, newError(KindUnsupportedAlgorithm, "unsupported content encryption algorithm")
	}
}

func contentEncryptionAlgorithmForOID(oid asn1.ObjectIdentifier) (ContentEncryptionAlgorithm, error) {
	switch {
	case oid.Equal(oidDESEDE3CBC):
		return DES3CBC, nil
	case oid.Equal(oidAES128CBC):
		return AES128CBC, nil
	case oid.Equal(oidAES256CBC):
		return AES256CBC, nil
	default:
		return "", newError(KindUnsupportedAlgorithm, "unsupported content encryption algorithm OID "+oid.String())
	}
}
