package scep

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"

	"github.com/go-kit/kit/log/level"
)

// messageState tracks a ParsedMessage's progress through parse, signature
// verification, and (for messages carrying a decryptable payload) envelope
// decryption.
type messageState int

const (
	stateParsed messageState = iota
	stateVerified
	stateDecrypted
)

// State reports how far this message has progressed: "parsed" once the
// ASN.1 structure decodes (but at least one SignerInfo could not be
// verified — see UnverifiedSigners), "verified" once every SignerInfo's
// signature has checked out, "decrypted" once DecryptEnvelope has succeeded.
func (m *ParsedMessage) State() string {
	switch m.state {
	case stateDecrypted:
		return "decrypted"
	case stateVerified:
		return "verified"
	default:
		return "parsed"
	}
}

// ParsedSigner is one SignerInfo from a parsed pkiMessage. Verified is false
// when no certificate could be found to check the signature against (the
// signer's own certificate was not attached and none of WithCACerts'
// out-of-band set matched) — a real enrollment state, not a parse failure;
// per spec.md §4.5 step 3a the signer is recorded rather than rejected.
type ParsedSigner struct {
	Identifier      SignerIdentifier
	Certificate     *x509.Certificate
	DigestAlgorithm DigestAlgorithm
	Verified        bool
}

// ParsedMessage is the result of ParsePKIMessage: the SCEP signed attributes
// extracted from a pkiMessage, plus the still-encrypted envelope content for
// a later DecryptEnvelope call. Signed attributes are extracted from every
// SignerInfo regardless of whether that signer's certificate was available
// to verify against, so a message with an unresolvable signer remains usable
// for metadata inspection (spec.md §7's non-fatal UnverifiedSigner).
type ParsedMessage struct {
	MessageType    MessageType
	HasMessageType bool
	PKIStatus      PKIStatus
	HasPKIStatus   bool
	FailInfo       FailInfo
	HasFailInfo    bool
	SenderNonce    SenderNonce
	RecipientNonce RecipientNonce
	TransactionID  TransactionID

	Certificates []*x509.Certificate
	Signers      []ParsedSigner

	// UnverifiedSigners lists the identifiers of signers whose signature
	// could not be checked because no matching certificate was found. Its
	// presence is why State() may report "parsed" rather than "verified".
	UnverifiedSigners []SignerIdentifier

	registry    *OIDRegistry
	envelopeDER []byte
	state       messageState
}

// ParsePKIMessage decodes der as a pkiMessage, verifies every SignerInfo
// whose signer certificate can be resolved, and extracts the SCEP signed
// attributes, per spec.md §4.5. The encapsulated EnvelopedData is retained
// undecrypted; call DecryptEnvelope to recover the plaintext payload.
//
// A SignerInfo whose certificate cannot be found (not attached, and not
// supplied via WithCACerts) does not fail the parse: its identifier is
// added to UnverifiedSigners and its ParsedSigner.Verified is false, but
// parsing continues. ParsePKIMessage returns an error for structurally
// malformed input, a SignedData with no SignerInfos, an unsupported digest
// or signature algorithm or a non-RSA signer key, a tampered signature on a
// signer whose certificate WAS found, or a violation of the SCEP attribute
// invariants (e.g. a FAILURE pkiStatus missing failInfo).
//
// By default signer certificates are resolved only from the message's own
// SignedData.certificates; pass WithCACerts to also search an out-of-band
// certificate set, which is consulted after the attached certificates.
func ParsePKIMessage(der []byte, opts ...Option) (*ParsedMessage, error) {
	conf := newConfig()
	for _, opt := range opts {
		opt(conf)
	}

	var ci contentInfo
	if rest, err := asn1.Unmarshal(der, &ci); err != nil || len(rest) > 0 {
		return nil, newError(KindMalformedASN1, "parse outer ContentInfo")
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, newError(KindMalformedASN1, "pkiMessage content is not signedData")
	}

	var sd signedData
	if rest, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil || len(rest) > 0 {
		return nil, wrapError(KindMalformedASN1, err, "parse SignedData")
	}
	if len(sd.SignerInfos) == 0 {
		return nil, newError(KindNoSigners, "signedData contains no SignerInfos")
	}

	certs, err := parseCertificateSet(sd.Certificates)
	if err != nil {
		return nil, err
	}

	innerContentInfoDER := sd.EncapContentInfo.Content.Bytes
	if len(innerContentInfoDER) == 0 {
		return nil, newError(KindMalformedASN1, "signedData has no encapsulated content")
	}

	msg := &ParsedMessage{
		Certificates: certs,
		registry:     NewOIDRegistry(),
		envelopeDER:  innerContentInfoDER,
		state:        stateParsed,
	}

	for _, si := range sd.SignerInfos {
		if err := msg.verifySignerInfo(si, certs, conf.caCerts); err != nil {
			return nil, err
		}
	}
	if len(msg.UnverifiedSigners) == 0 {
		msg.state = stateVerified
	}

	level.Debug(conf.logger).Log(
		"msg", "parsed pki message",
		"signers", len(msg.Signers),
		"unverifiedSigners", len(msg.UnverifiedSigners),
		"messageType", msg.MessageType,
	)
	return msg, nil
}

func (m *ParsedMessage) verifySignerInfo(si rawSignerInfo, certs, caCerts []*x509.Certificate) error {
	digestAlg, err := digestAlgorithmForOID(si.DigestAlgorithm.Algorithm)
	if err != nil {
		return err
	}
	if !si.SignatureAlgorithm.Algorithm.Equal(oidRSAEncryption) {
		return newErrorf(KindUnsupportedAlgorithm, "unsupported signature algorithm %s", si.SignatureAlgorithm.Algorithm.String())
	}

	sid, err := signerIdentifierFromRaw(si.SID)
	if err != nil {
		return err
	}

	scepAttrs, err := extractSCEPAttributes(m.registry, si.SignedAttrs)
	if err != nil {
		return err
	}

	cert := findSignerCertificate(sid, certs, caCerts)
	if cert == nil {
		// Signer certificate not available (not attached, not supplied via
		// WithCACerts) — e.g. a client's own cert that the CA/RA hasn't
		// fetched yet. Record the signer as unverified and keep going
		// rather than aborting the whole parse (spec.md §4.5 step 3a).
		m.applySCEPAttributes(scepAttrs)
		m.Signers = append(m.Signers, ParsedSigner{
			Identifier:      sid,
			DigestAlgorithm: digestAlg,
		})
		m.UnverifiedSigners = append(m.UnverifiedSigners, sid)
		return nil
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return newError(KindUnsupportedAlgorithm, "signer certificate does not carry an RSA public key")
	}

	hashFn, err := cryptoHashForDigest(digestAlg)
	if err != nil {
		return err
	}

	h := hashFn.New()
	h.Write(m.envelopeDER)
	wantDigest := h.Sum(nil)

	var haveContentType, haveMessageDigest bool
	for _, attr := range si.SignedAttrs {
		switch {
		case attr.Type.Equal(oidAttributeContentType):
			b, err := attributeValueBytes(attr)
			if err != nil {
				return err
			}
			var ct asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(b, &ct); err != nil {
				return wrapError(KindMalformedASN1, err, "parse content-type attribute")
			}
			if !ct.Equal(oidData) {
				return newError(KindBadSignature, "content-type attribute does not match encapsulated content type")
			}
			haveContentType = true
		case attr.Type.Equal(oidAttributeMessageDigest):
			got, err := attributeOctets(attr)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, wantDigest) {
				return newError(KindBadSignature, "message-digest attribute does not match encapsulated content")
			}
			haveMessageDigest = true
		}
	}
	if !haveContentType || !haveMessageDigest {
		return newError(KindMalformedASN1, "signedAttrs missing required content-type or message-digest attribute")
	}

	sortedAttrs, err := sortAttributesForDER(si.SignedAttrs)
	if err != nil {
		return err
	}
	toVerify, err := derEncodeSignedAttrsForSigning(sortedAttrs)
	if err != nil {
		return err
	}
	vh := hashFn.New()
	vh.Write(toVerify)
	attrDigest := vh.Sum(nil)

	if err := rsa.VerifyPKCS1v15(pub, hashFn, attrDigest, si.Signature); err != nil {
		return wrapError(KindBadSignature, err, "verify signerInfo signature")
	}

	m.applySCEPAttributes(scepAttrs)
	m.Signers = append(m.Signers, ParsedSigner{
		Identifier:      sid,
		Certificate:     cert,
		DigestAlgorithm: digestAlg,
		Verified:        true,
	})
	return nil
}

func signerIdentifierFromRaw(raw asn1.RawValue) (SignerIdentifier, error) {
	if raw.Class == asn1.ClassContextSpecific && raw.Tag == 0 {
		return SignerIdentifier{IsSubjectKeyID: true, SubjectKeyID: raw.Bytes}, nil
	}
	var ias issuerAndSerial
	if _, err := asn1.Unmarshal(raw.FullBytes, &ias); err != nil {
		return SignerIdentifier{}, wrapError(KindMalformedASN1, err, "parse IssuerAndSerialNumber signer identifier")
	}
	return SignerIdentifier{IssuerRawName: ias.IssuerName.FullBytes, SerialNumber: ias.SerialNumber}, nil
}

func findSignerCertificate(sid SignerIdentifier, pools ...[]*x509.Certificate) *x509.Certificate {
	for _, pool := range pools {
		for _, c := range pool {
			if sid.MatchesCertificate(c) {
				return c
			}
		}
	}
	return nil
}

// scepAttrValues holds the decoded SCEP signed attributes found on one
// SignerInfo, before being folded into a ParsedMessage.
type scepAttrValues struct {
	messageType    MessageType
	hasMessageType bool
	pkiStatus      PKIStatus
	hasPKIStatus   bool
	failInfo       FailInfo
	hasFailInfo    bool
	senderNonce    SenderNonce
	recipientNonce RecipientNonce
	transactionID  TransactionID
}

func extractSCEPAttributes(registry *OIDRegistry, attrs []attribute) (scepAttrValues, error) {
	var v scepAttrValues
	for _, attr := range attrs {
		name, ok := registry.Name(attr.Type)
		if !ok {
			continue // vendor/unknown attribute: left on the wire, not surfaced here
		}
		switch name {
		case "messageType":
			s, err := attributeString(attr)
			if err != nil {
				return v, err
			}
			v.messageType, v.hasMessageType = MessageType(s), true
		case "pkiStatus":
			s, err := attributeString(attr)
			if err != nil {
				return v, err
			}
			v.pkiStatus, v.hasPKIStatus = PKIStatus(s), true
		case "failInfo":
			s, err := attributeString(attr)
			if err != nil {
				return v, err
			}
			v.failInfo, v.hasFailInfo = FailInfo(s), true
		case "senderNonce":
			b, err := attributeOctets(attr)
			if err != nil {
				return v, err
			}
			v.senderNonce = SenderNonce(b)
		case "recipientNonce":
			b, err := attributeOctets(attr)
			if err != nil {
				return v, err
			}
			v.recipientNonce = RecipientNonce(b)
		case "transactionID":
			s, err := attributeString(attr)
			if err != nil {
				return v, err
			}
			v.transactionID = TransactionID(s)
		}
	}
	if v.hasPKIStatus && v.pkiStatus == FAILURE && !v.hasFailInfo {
		return v, newError(KindMissingFailInfo, "pkiStatus is FAILURE but signedAttrs carries no failInfo")
	}
	return v, nil
}

func (m *ParsedMessage) applySCEPAttributes(v scepAttrValues) {
	if v.hasMessageType {
		m.MessageType, m.HasMessageType = v.messageType, true
	}
	if v.hasPKIStatus {
		m.PKIStatus, m.HasPKIStatus = v.pkiStatus, true
	}
	if v.hasFailInfo {
		m.FailInfo, m.HasFailInfo = v.failInfo, true
	}
	if v.senderNonce != nil {
		m.SenderNonce = v.senderNonce
	}
	if v.recipientNonce != nil {
		m.RecipientNonce = v.recipientNonce
	}
	if v.transactionID != "" {
		m.TransactionID = v.transactionID
	}
}

// DecryptEnvelope decrypts the pkiMessage's encapsulated EnvelopedData using
// the recipient's certificate and private key, per spec.md §4.5's second
// operation. cert is used only to locate the matching RecipientInfo; key
// performs the actual RSA decryption.
func (m *ParsedMessage) DecryptEnvelope(cert *x509.Certificate, key *rsa.PrivateKey) ([]byte, error) {
	var inner contentInfo
	if rest, err := asn1.Unmarshal(m.envelopeDER, &inner); err != nil || len(rest) > 0 {
		return nil, newError(KindMalformedASN1, "parse encapsulated ContentInfo")
	}
	if !inner.ContentType.Equal(oidEnvelopedData) {
		return nil, newError(KindMalformedASN1, "encapsulated content is not envelopedData")
	}

	var env envelopedData
	if rest, err := asn1.Unmarshal(inner.Content.Bytes, &env); err != nil || len(rest) > 0 {
		return nil, wrapError(KindMalformedASN1, err, "parse EnvelopedData")
	}

	var matched *recipientInfo
	for i := range env.RecipientInfos {
		ri := &env.RecipientInfos[i]
		if bytes.Equal(ri.IssuerAndSerialNumber.IssuerName.FullBytes, cert.RawIssuer) &&
			ri.IssuerAndSerialNumber.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			matched = ri
			break
		}
	}
	if matched == nil {
		return nil, newError(KindUnknownRecipient, "no RecipientInfo matches the given certificate")
	}

	contentKey, err := rsa.DecryptPKCS1v15(rand.Reader, key, matched.EncryptedKey)
	if err != nil {
		return nil, wrapError(KindBadPadding, err, "RSA-decrypt content encryption key")
	}

	alg, err := contentEncryptionAlgorithmForOID(env.EncryptedContentInfo.ContentEncryptionAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}
	iv := env.EncryptedContentInfo.ContentEncryptionAlgorithm.Parameters.Bytes
	if len(iv) != alg.blockSize() {
		return nil, newError(KindMalformedASN1, "content encryption IV has the wrong length")
	}

	block, err := newBlockCipher(alg, contentKey)
	if err != nil {
		return nil, err
	}

	ciphertext := env.EncryptedContentInfo.EncryptedContent.Bytes
	if len(ciphertext) == 0 || len(ciphertext)%alg.blockSize() != 0 {
		return nil, newError(KindMalformedASN1, "encrypted content length is not a multiple of the block size")
	}
	paddedPlaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(paddedPlaintext, ciphertext)

	plaintext, err := pkcs7Unpad(paddedPlaintext, alg.blockSize())
	if err != nil {
		return nil, err
	}

	m.state = stateDecrypted
	return plaintext, nil
}
