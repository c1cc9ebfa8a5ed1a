package scep

import (
	"io"

	"github.com/google/uuid"
)

const nonceSize = 16

// newSenderNonce returns a fresh 16-octet nonce read from r.
func newSenderNonce(r io.Reader) (SenderNonce, error) {
	b, err := randomBytes(r, nonceSize)
	if err != nil {
		return nil, err
	}
	return SenderNonce(b), nil
}

// newTransactionID returns a freshly generated UUID in string form, sourced
// from r, used as the default transaction-id when the caller does not
// supply one. SCEP practice often hashes the requester's public key
// instead, but spec.md §4.4 leaves that policy to the caller and only
// requires a printable string default.
func newTransactionID(r io.Reader) (TransactionID, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", wrapError(KindRngFailure, err, "generate transaction id")
	}
	return TransactionID(id.String()), nil
}

// randomBytes returns n bytes read from r, used for the content-encryption
// key and the IV.
func randomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, wrapError(KindRngFailure, err, "read random bytes")
	}
	return b, nil
}
