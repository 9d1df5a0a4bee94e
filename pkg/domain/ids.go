package domain

import (
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "assent/pkg/domain-errors"
)

// Typed IDs prevent cross-type assignment at compile time. Construct via the
// Parse functions at trust boundaries; New functions mint fresh values.

// RecordID identifies a stored consent record.
type RecordID uuid.UUID

// SessionID identifies a session scope in session-backed storage.
type SessionID uuid.UUID

// SubjectID identifies the person or agent a consent decision belongs to.
// Unlike the UUID-backed IDs this is an external identifier (account ID,
// device ID, pseudonym) and only shape-validated.
type SubjectID string

// maxSubjectIDLength bounds external subject identifiers. Anything longer is
// almost certainly hostile or a bug upstream.
const maxSubjectIDLength = 256

// NewRecordID mints a fresh record ID.
func NewRecordID() RecordID {
	return RecordID(uuid.New())
}

// NewSessionID mints a fresh session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseRecordID validates and returns a RecordID.
//
// Errors: CodeInvalidInput for empty, malformed, or nil UUIDs.
func ParseRecordID(s string) (RecordID, error) {
	id, err := parseUUID(s, "record id")
	return RecordID(id), err
}

// ParseSessionID validates and returns a SessionID.
//
// Errors: CodeInvalidInput for empty, malformed, or nil UUIDs.
func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session id")
	return SessionID(id), err
}

// ParseSubjectID validates an external subject identifier. Rejects empty or
// whitespace-only values, invalid UTF-8, control and format characters, and
// oversized input.
//
// Errors: returns CodeInvalidInput; no other errors are expected.
func ParseSubjectID(s string) (SubjectID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}
	if len(s) > maxSubjectIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id exceeds maximum length")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id is not valid UTF-8")
	}
	blank := true
	for _, r := range s {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "subject id contains control characters")
		}
		if !unicode.IsSpace(r) {
			blank = false
		}
	}
	if blank {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be blank")
	}
	return SubjectID(s), nil
}

func (id RecordID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SubjectID) String() string { return string(id) }

// MarshalText renders the canonical UUID form for JSON and text encoders.
func (id RecordID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

// UnmarshalText accepts exactly what ParseRecordID accepts.
func (id *RecordID) UnmarshalText(b []byte) error {
	parsed, err := ParseRecordID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsNil reports whether the record ID is the zero UUID.
func (id RecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// IsNil reports whether the session ID is the zero UUID.
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", kind)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", kind)
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", kind)
	}
	return id, nil
}
