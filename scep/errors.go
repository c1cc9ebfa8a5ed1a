package scep

import "github.com/pkg/errors"

// Kind classifies a core error into the taxonomy spec.md §7 requires
// callers to be able to branch on.
type Kind string

// The closed set of error kinds the core surfaces.
const (
	KindMalformedASN1        Kind = "malformed_asn1"
	KindUnsupportedAlgorithm Kind = "unsupported_algorithm"
	KindBadSignature         Kind = "bad_signature"
	KindBadPadding           Kind = "bad_padding"
	KindUnknownRecipient     Kind = "unknown_recipient"
	KindMissingFailInfo      Kind = "missing_fail_info"
	KindNoRecipients         Kind = "no_recipients"
	KindNoSigners            Kind = "no_signers"
	KindRngFailure           Kind = "rng_failure"

	// KindUnverifiedSigner classifies a SignerIdentifier recorded on
	// ParsedMessage.UnverifiedSigners. It is never returned as an error: an
	// unresolvable signer certificate is a non-fatal observation
	// (spec.md §7), not a parse failure.
	KindUnverifiedSigner Kind = "unverified_signer"
)

// Error is the concrete error type the core returns. It carries a Kind so
// callers can match on taxonomy rather than string content, while still
// composing with github.com/pkg/errors for wrapped context and stack traces.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.err.Error()
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Cause supports github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.err }

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, err: errors.New(msg)}
}

func newErrorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

func wrapError(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrap(err, msg)}
}

// Is reports whether err is, or wraps, a core Error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
