package consent

import (
	"encoding/json"
	"sort"
	"time"

	"assent/pkg/domain"
	dErrors "assent/pkg/domain-errors"
)

// Record captures one subject's consent decision. It is the unit of
// storage: SetConsent overwrites the whole record and RevokeConsent deletes
// it, so the latest record is always the complete truth for a subject.
//
// SubjectID holds the storage form of the identifier. When the client is
// configured with a pseudonymization key this is the pseudonym, not the
// value the caller passed in.
type Record struct {
	ID          domain.RecordID         `json:"id"`
	SubjectID   string                  `json:"subject_id"`
	Preferences map[domain.Purpose]bool `json:"preferences"`
	// Metadata carries caller-defined context (UI variant, policy version).
	// Opaque to the client.
	Metadata map[string]string `json:"metadata,omitempty"`
	GivenAt  time.Time         `json:"given_at"`
	// ExpiresAt bounds the decision's validity. Nil records never expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// Receipt is the signed proof issued at grant time, when configured.
	Receipt string `json:"receipt,omitempty"`
}

// IsActive reports whether the record is currently in force.
func (r Record) IsActive(now time.Time) bool {
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

// Grants reports whether the record actively grants the purpose. An
// expired record grants nothing.
func (r Record) Grants(purpose domain.Purpose, now time.Time) bool {
	return r.IsActive(now) && r.Preferences[purpose]
}

// GrantedPurposes returns the granted purposes as sorted strings.
func (r Record) GrantedPurposes() []string {
	var out []string
	for p, granted := range r.Preferences {
		if granted {
			out = append(out, string(p))
		}
	}
	sort.Strings(out)
	return out
}

// storedRecord is the persisted envelope. The schema version gates
// decoding so a record written by a newer client is rejected, never
// silently misread.
type storedRecord struct {
	Schema domain.SchemaVersion `json:"schema"`
	Record Record               `json:"record"`
}

func encodeRecord(r Record) ([]byte, error) {
	raw, err := json.Marshal(storedRecord{
		Schema: domain.CurrentSchemaVersion(),
		Record: r,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode consent record")
	}
	return raw, nil
}

func decodeRecord(raw []byte) (Record, error) {
	var env storedRecord
	if err := json.Unmarshal(raw, &env); err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeInvalidConsent, "malformed consent record")
	}
	schema, err := domain.ParseSchemaVersion(env.Schema.String())
	if err != nil || !domain.CurrentSchemaVersion().IsAtLeast(schema) {
		return Record{}, dErrors.Newf(dErrors.CodeUnsupported,
			"consent record schema %q is not supported by this client", env.Schema)
	}
	return env.Record, nil
}
