// Package marmoterr defines the named error kinds surfaced across
// marmotgroup, so call sites can errors.Is/errors.As against a stable
// vocabulary instead of matching on message text.
package marmoterr

import "fmt"

// Kind identifies which error-handling policy (fatal vs per-event,
// see spec §7) applies to a returned error.
type Kind string

const (
	KindInvalidPublicKey      Kind = "invalid_public_key"
	KindUnsupportedCredential Kind = "unsupported_credential"
	KindInvalidField          Kind = "invalid_field"
	KindTruncated             Kind = "truncated"
	KindUnsupportedVersion    Kind = "unsupported_version"
	KindUnreadable            Kind = "unreadable"
	KindMLSProtocolError      Kind = "mls_protocol_error"
	KindGroupNotFound         Kind = "group_not_found"
	KindNoRelaysAvailable     Kind = "no_relays_available"
	KindNoAck                 Kind = "no_ack"
	KindPersistenceError      Kind = "persistence_error"
)

// Error wraps an underlying cause with a stable Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, marmoterr.NoAck("")) style checks: any *Error
// target matches when its Kind equals e's, regardless of pointer identity
// or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// InvalidPublicKey reports a credential whose key is not a well-formed
// 32-byte (64 hex char) public key.
func InvalidPublicKey(reason string) error {
	return newErr(KindInvalidPublicKey, reason, nil)
}

// UnsupportedCredential reports a credential type other than "basic".
func UnsupportedCredential(credType string) error {
	return newErr(KindUnsupportedCredential, fmt.Sprintf("credential type %q is not supported", credType), nil)
}

// InvalidField reports a Marmot Group Data Extension field that fails
// validation during encode.
func InvalidField(name, reason string) error {
	return newErr(KindInvalidField, fmt.Sprintf("field %q: %s", name, reason), nil)
}

// Truncated reports a binary decode that ran out of bytes at offset.
func Truncated(offset int) error {
	return newErr(KindTruncated, fmt.Sprintf("truncated at offset %d", offset), nil)
}

// UnsupportedVersion reports a Marmot Group Data Extension version this
// decoder does not understand.
func UnsupportedVersion(v uint16) error {
	return newErr(KindUnsupportedVersion, fmt.Sprintf("unsupported version %d", v), nil)
}

// Unreadable reports an envelope that could not be decrypted against the
// current epoch — non-fatal, the event is set aside per spec §4.9.
func Unreadable(reason string, cause error) error {
	return newErr(KindUnreadable, reason, cause)
}

// MLSProtocolError reports a proposal or commit that MLS rules reject.
// Per-event, non-fatal for the containing batch.
func MLSProtocolError(reason string, cause error) error {
	return newErr(KindMLSProtocolError, reason, cause)
}

// GroupNotFound reports a store lookup for a group id with no entry,
// including one that was previously Removed.
func GroupNotFound(groupID string) error {
	return newErr(KindGroupNotFound, fmt.Sprintf("group %q not found", groupID), nil)
}

// NoRelaysAvailable reports a publish attempted with an empty relay list.
func NoRelaysAvailable() error {
	return newErr(KindNoRelaysAvailable, "no relays available for publish", nil)
}

// NoAck reports a publish where no relay acknowledged the event.
func NoAck(eventID string) error {
	return newErr(KindNoAck, fmt.Sprintf("no relay acknowledged event %q", eventID), nil)
}

// PersistenceError reports a store upsert failure after a successful state
// mutation. Fatal: the in-memory state is now ahead of the store.
func PersistenceError(cause error) error {
	return newErr(KindPersistenceError, "state mutated in memory but not persisted", cause)
}
