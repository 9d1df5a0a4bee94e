package domain

import dErrors "assent/pkg/domain-errors"

// Purpose is a domain value that identifies why data is processed.
// Invariant: the value must be one of the supported consent purposes.
//
// Usage: construct via ParsePurpose at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Purpose string

// Supported consent purposes.
const (
	PurposeNecessary       Purpose = "necessary"
	PurposeFunctional      Purpose = "functional"
	PurposeAnalytics       Purpose = "analytics"
	PurposeMarketing       Purpose = "marketing"
	PurposePersonalization Purpose = "personalization"
)

// validPurposes is the single source of truth for valid consent purposes.
var validPurposes = map[Purpose]bool{
	PurposeNecessary:       true,
	PurposeFunctional:      true,
	PurposeAnalytics:       true,
	PurposeMarketing:       true,
	PurposePersonalization: true,
}

// ParsePurpose constructs a Purpose from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParsePurpose(s string) (Purpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "purpose cannot be empty")
	}
	p := Purpose(s)
	if !p.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid purpose: %q", s)
	}
	return p, nil
}

// IsValid checks if the purpose is one of the supported enum values.
func (p Purpose) IsValid() bool {
	return validPurposes[p]
}

// IsEssential reports whether the purpose is exempt from opt-in. Essential
// purposes are granted implicitly and cannot be declined.
func (p Purpose) IsEssential() bool {
	return p == PurposeNecessary
}

// String returns the string representation of the purpose.
func (p Purpose) String() string {
	return string(p)
}

// AllPurposes returns the supported purposes in a stable order.
func AllPurposes() []Purpose {
	return []Purpose{
		PurposeNecessary,
		PurposeFunctional,
		PurposeAnalytics,
		PurposeMarketing,
		PurposePersonalization,
	}
}
