package scep

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// MessageBuilder assembles a signed SCEP pkiMessage: an outer SignedData
// whose encapsulated content is an EnvelopedData, with the SCEP signed
// attributes attached to every SignerInfo. Mirrors the teacher's fluent
// style, generalized to multiple signers per spec.md §4.4.
type MessageBuilder struct {
	registry   *OIDRegistry
	attrs      *scepAttributes
	envelope   *Envelope
	signers    []Signer
	extraCerts []*x509.Certificate
	logger     log.Logger
	rand       io.Reader
}

// NewMessageBuilder constructs an empty MessageBuilder. Its registry holds
// NewOIDRegistry's standard six SCEP attributes; if a vendor attribute is
// needed, extend it by calling Register on the returned builder's Registry.
func NewMessageBuilder(opts ...Option) *MessageBuilder {
	conf := newConfig()
	for _, opt := range opts {
		opt(conf)
	}
	return &MessageBuilder{
		registry: NewOIDRegistry(),
		attrs:    newScepAttributes(),
		logger:   conf.logger,
		rand:     conf.rand,
	}
}

// Registry returns the OIDRegistry this builder resolves attribute names
// against, so callers can Register additional vendor attributes before
// calling the corresponding setter.
func (b *MessageBuilder) Registry() *OIDRegistry { return b.registry }

// SetMessageType sets the messageType signed attribute.
func (b *MessageBuilder) SetMessageType(mt MessageType) *MessageBuilder {
	b.attrs.set("messageType", string(mt))
	return b
}

// SetPKIStatus sets the pkiStatus signed attribute. When status is FAILURE,
// SetFailInfo must also be called before Finalize.
func (b *MessageBuilder) SetPKIStatus(status PKIStatus) *MessageBuilder {
	b.attrs.set("pkiStatus", string(status))
	return b
}

// SetFailInfo sets the failInfo signed attribute.
func (b *MessageBuilder) SetFailInfo(fi FailInfo) *MessageBuilder {
	b.attrs.set("failInfo", string(fi))
	return b
}

// SetSenderNonce sets the senderNonce signed attribute. If never called,
// Finalize generates a fresh random nonce.
func (b *MessageBuilder) SetSenderNonce(nonce SenderNonce) *MessageBuilder {
	b.attrs.set("senderNonce", []byte(nonce))
	return b
}

// SetRecipientNonce sets the recipientNonce signed attribute, normally the
// senderNonce copied from the message this one replies to.
func (b *MessageBuilder) SetRecipientNonce(nonce RecipientNonce) *MessageBuilder {
	b.attrs.set("recipientNonce", []byte(nonce))
	return b
}

// SetTransactionID sets the transactionID signed attribute. If never called,
// Finalize generates a fresh UUID.
func (b *MessageBuilder) SetTransactionID(id TransactionID) *MessageBuilder {
	b.attrs.set("transactionID", string(id))
	return b
}

// SetEnvelope attaches the EnvelopedData produced by EnvelopeBuilder as the
// encapsulated content. Required before Finalize.
func (b *MessageBuilder) SetEnvelope(env *Envelope) *MessageBuilder {
	b.envelope = env
	return b
}

// AddSigner appends a signer that will produce one SignerInfo. At least one
// signer is required before Finalize. All signers must share the same
// DigestAlgorithm.
func (b *MessageBuilder) AddSigner(signer Signer) *MessageBuilder {
	b.signers = append(b.signers, signer)
	return b
}

// AddCertificate appends an additional certificate to the outer SignedData's
// certificate set, beyond the signers' own certificates (e.g. an RA
// certificate the peer will need to validate a chain).
func (b *MessageBuilder) AddCertificate(cert *x509.Certificate) *MessageBuilder {
	b.extraCerts = append(b.extraCerts, cert)
	return b
}

// Finalize runs the signing procedure of spec.md §4.4 and returns the DER
// encoding of the complete pkiMessage's outer ContentInfo.
func (b *MessageBuilder) Finalize() ([]byte, error) {
	if len(b.signers) == 0 {
		return nil, newError(KindNoSigners, "message builder: no signers added")
	}
	if b.envelope == nil {
		return nil, newError(KindMalformedASN1, "message builder: no envelope attached")
	}

	if status, ok := b.attrs.get("pkiStatus"); ok && status.(string) == string(FAILURE) && !b.attrs.has("failInfo") {
		return nil, newError(KindMissingFailInfo, "pkiStatus is FAILURE but no failInfo was set")
	}

	if !b.attrs.has("senderNonce") {
		nonce, err := newSenderNonce(b.rand)
		if err != nil {
			return nil, err
		}
		b.attrs.set("senderNonce", []byte(nonce))
	}
	if !b.attrs.has("transactionID") {
		id, err := newTransactionID(b.rand)
		if err != nil {
			return nil, err
		}
		b.attrs.set("transactionID", string(id))
	}

	digest := b.signers[0].Digest
	for _, s := range b.signers[1:] {
		if s.Digest != digest {
			return nil, newError(KindUnsupportedAlgorithm, "all signers in one message must use the same digest algorithm")
		}
	}
	hashFn, err := cryptoHashForDigest(digest)
	if err != nil {
		return nil, err
	}
	digestOID, err := digestOIDForAlgorithm(digest)
	if err != nil {
		return nil, err
	}

	envelopeDER, err := b.envelope.der()
	if err != nil {
		return nil, err
	}
	innerContentInfo, err := wrapContentInfo(oidEnvelopedData, envelopeDER)
	if err != nil {
		return nil, err
	}

	h := hashFn.New()
	h.Write(innerContentInfo)
	messageDigest := h.Sum(nil)

	scepAttrs, err := b.attrs.toAttributes(b.registry)
	if err != nil {
		return nil, err
	}
	contentTypeAttr, err := makeAttribute(oidAttributeContentType, oidData)
	if err != nil {
		return nil, err
	}
	messageDigestAttr, err := makeAttribute(oidAttributeMessageDigest, messageDigest)
	if err != nil {
		return nil, err
	}

	allAttrs := append([]attribute{contentTypeAttr, messageDigestAttr}, scepAttrs...)
	sortedAttrs, err := sortAttributesForDER(allAttrs)
	if err != nil {
		return nil, err
	}

	toSign, err := derEncodeSignedAttrsForSigning(sortedAttrs)
	if err != nil {
		return nil, err
	}
	sh := hashFn.New()
	sh.Write(toSign)
	attrDigest := sh.Sum(nil)

	signerInfos := make([]rawSignerInfo, len(b.signers))
	certs := make([]*x509.Certificate, 0, len(b.signers)+len(b.extraCerts))
	for i, signer := range b.signers {
		sig, err := rsa.SignPKCS1v15(b.rand, signer.Key, hashFn, attrDigest)
		if err != nil {
			return nil, wrapError(KindRngFailure, err, "RSA-sign signed attributes")
		}

		ias, err := issuerAndSerialFromCert(signer.Cert.RawIssuer, signer.Cert.SerialNumber)
		if err != nil {
			return nil, err
		}
		sidDER, err := asn1.Marshal(ias)
		if err != nil {
			return nil, wrapError(KindMalformedASN1, err, "marshal signer identifier")
		}
		var sidRaw asn1.RawValue
		if _, err := asn1.Unmarshal(sidDER, &sidRaw); err != nil {
			return nil, wrapError(KindMalformedASN1, err, "re-parse signer identifier")
		}

		signerInfos[i] = rawSignerInfo{
			Version:            1,
			SID:                sidRaw,
			DigestAlgorithm:    pkix.AlgorithmIdentifier{Algorithm: digestOID},
			SignedAttrs:        sortedAttrs,
			SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oidRSAEncryption},
			Signature:          sig,
		}
		certs = append(certs, signer.Cert)
	}
	certs = append(certs, b.extraCerts...)

	certSet, err := marshalCertificateSet(certs)
	if err != nil {
		return nil, err
	}

	sd := signedData{
		Version:          1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{{Algorithm: digestOID}},
		EncapContentInfo: contentInfo{
			ContentType: oidData,
			Content:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: innerContentInfo},
		},
		Certificates: certSet,
		SignerInfos:  signerInfos,
	}

	inner, err := asn1.Marshal(sd)
	if err != nil {
		return nil, wrapError(KindMalformedASN1, err, "marshal SignedData")
	}

	out, err := wrapContentInfo(oidSignedData, inner)
	if err != nil {
		return nil, err
	}

	level.Debug(b.logger).Log(
		"msg", "built pki message",
		"signers", len(b.signers),
		"digest", digest,
		"extra_certs", len(b.extraCerts),
	)

	return out, nil
}

func cryptoHashForDigest(alg DigestAlgorithm) (crypto.Hash, error) {
	switch alg {
	case SHA1:
		return crypto.SHA1, nil
	case SHA256:
		return crypto.SHA256, nil
	case SHA512:
		return crypto.SHA512, nil
	default:
		return 0, newErrorf(KindUnsupportedAlgorithm, "unsupported digest algorithm %q", alg)
	}
}
