package scep

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Envelope is the result of EnvelopeBuilder.Finalize: a CMS EnvelopedData
// ready to be wrapped as the encapsulated content of a pkiMessage.
type Envelope struct {
	Algorithm ContentEncryptionAlgorithm
	raw       envelopedData
}

// der returns the DER encoding of the bare EnvelopedData (not wrapped in an
// outer ContentInfo; MessageBuilder does that wrapping).
func (e *Envelope) der() ([]byte, error) {
	b, err := asn1.Marshal(e.raw)
	if err != nil {
		return nil, wrapError(KindMalformedASN1, err, "marshal EnvelopedData")
	}
	return b, nil
}

// EnvelopeBuilder accumulates plaintext, a content-encryption algorithm
// choice, and one or more recipients, then produces an Envelope via
// Finalize. Mirrors the teacher's fluent-builder style, generalized per
// spec.md §4.3.
type EnvelopeBuilder struct {
	content    []byte
	algorithm  ContentEncryptionAlgorithm
	recipients []Recipient
	logger     log.Logger
	rand       io.Reader
}

// NewEnvelopeBuilder constructs an EnvelopeBuilder defaulting to 3DES-CBC,
// the algorithm legacy SCEP peers (NDES, older iOS/macOS) require.
func NewEnvelopeBuilder(opts ...Option) *EnvelopeBuilder {
	conf := newConfig()
	for _, opt := range opts {
		opt(conf)
	}
	return &EnvelopeBuilder{
		algorithm: DES3CBC,
		logger:    conf.logger,
		rand:      conf.rand,
	}
}

// SetContent sets the plaintext payload to encrypt.
func (b *EnvelopeBuilder) SetContent(content []byte) *EnvelopeBuilder {
	b.content = content
	return b
}

// SetAlgorithm chooses the content-encryption algorithm. Defaults to 3DES-CBC.
func (b *EnvelopeBuilder) SetAlgorithm(alg ContentEncryptionAlgorithm) *EnvelopeBuilder {
	b.algorithm = alg
	return b
}

// AddRecipient appends a recipient certificate the symmetric key will be
// wrapped for. At least one recipient is required before Finalize.
func (b *EnvelopeBuilder) AddRecipient(cert *x509.Certificate) *EnvelopeBuilder {
	b.recipients = append(b.recipients, Recipient{Cert: cert})
	return b
}

// Finalize runs the encryption procedure of spec.md §4.3: generates a fresh
// symmetric key and IV, CBC-encrypts the padded plaintext, and RSA-wraps the
// key for every recipient. It returns the Envelope plus a copy of the
// symmetric key and IV for optional debugging; the builder does not retain
// them past this call.
func (b *EnvelopeBuilder) Finalize() (*Envelope, []byte, []byte, error) {
	if len(b.recipients) == 0 {
		return nil, nil, nil, newError(KindNoRecipients, "envelope builder: no recipients added")
	}

	keyLen := b.algorithm.keySize()
	blockSize := b.algorithm.blockSize()
	if keyLen == 0 || blockSize == 0 {
		return nil, nil, nil, newErrorf(KindUnsupportedAlgorithm, "unsupported content encryption algorithm %q", b.algorithm)
	}

	key, err := randomBytes(b.rand, keyLen)
	if err != nil {
		return nil, nil, nil, err
	}
	iv, err := randomBytes(b.rand, blockSize)
	if err != nil {
		return nil, nil, nil, err
	}

	block, err := newBlockCipher(b.algorithm, key)
	if err != nil {
		return nil, nil, nil, err
	}

	padded := pkcs7Pad(b.content, blockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	recipientInfos := make([]recipientInfo, len(b.recipients))
	for i, r := range b.recipients {
		ri, err := wrapKeyForRecipient(b.rand, key, r.Cert)
		if err != nil {
			return nil, nil, nil, err
		}
		recipientInfos[i] = ri
	}

	algOID, err := contentEncryptionOIDForAlgorithm(b.algorithm)
	if err != nil {
		return nil, nil, nil, err
	}

	env := &Envelope{
		Algorithm: b.algorithm,
		raw: envelopedData{
			Version:        1,
			RecipientInfos: recipientInfos,
			EncryptedContentInfo: encryptedContentInfo{
				ContentType: oidData,
				ContentEncryptionAlgorithm: pkix.AlgorithmIdentifier{
					Algorithm:  algOID,
					Parameters: asn1.RawValue{Tag: asn1.TagOctetString, Bytes: iv},
				},
				EncryptedContent: marshalEncryptedContent(ciphertext),
			},
		},
	}

	level.Debug(b.logger).Log(
		"msg", "built scep envelope",
		"algorithm", b.algorithm,
		"recipients", len(b.recipients),
		"plaintext_len", len(b.content),
	)

	return env, key, append([]byte(nil), iv...), nil
}

func newBlockCipher(alg ContentEncryptionAlgorithm, key []byte) (cipher.Block, error) {
	switch alg {
	case DES3CBC:
		block, err := des.NewTripleDESCipher(key)
		if err != nil {
			return nil, wrapError(KindUnsupportedAlgorithm, err, "construct 3DES cipher")
		}
		return block, nil
	case AES128CBC, AES256CBC:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, wrapError(KindUnsupportedAlgorithm, err, "construct AES cipher")
		}
		return block, nil
	default:
		return nil, newErrorf(KindUnsupportedAlgorithm, "unsupported content encryption algorithm %q", alg)
	}
}

func wrapKeyForRecipient(r io.Reader, key []byte, cert *x509.Certificate) (recipientInfo, error) {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return recipientInfo{}, newError(KindUnsupportedAlgorithm, "recipient certificate does not carry an RSA public key")
	}

	encryptedKey, err := rsa.EncryptPKCS1v15(r, pub, key)
	if err != nil {
		return recipientInfo{}, wrapError(KindRngFailure, err, "RSA-encrypt content encryption key")
	}

	ias, err := issuerAndSerialFromCert(cert.RawIssuer, cert.SerialNumber)
	if err != nil {
		return recipientInfo{}, err
	}

	return recipientInfo{
		Version:               0,
		IssuerAndSerialNumber:  ias,
		KeyEncryptionAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oidRSAEncryption},
		EncryptedKey:           encryptedKey,
	}, nil
}

// pkcs7Pad applies PKCS#7 padding up to blockSize, always adding at least
// one byte of padding (spec.md §4.3 step 3).
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// pkcs7Unpad strips and validates PKCS#7 padding, rejecting malformed
// padding without branching on the padding content itself beyond the
// length check (spec.md §4.5 step 5: reject without leaking detail beyond
// what the cipher library already exposes via timing).
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, newErrorf(KindBadPadding, "ciphertext length %d is not a multiple of block size %d", len(data), blockSize)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, newError(KindBadPadding, "invalid PKCS#7 padding length")
	}
	good := 1
	for _, b := range data[len(data)-padLen:] {
		good &= subtle.ConstantTimeByteEq(b, byte(padLen))
	}
	if good != 1 {
		return nil, newError(KindBadPadding, "invalid PKCS#7 padding bytes")
	}
	return data[:len(data)-padLen], nil
}
