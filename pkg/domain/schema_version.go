package domain

import (
	"fmt"
)

// SchemaVersion represents a valid stored-record schema version.
// This is a domain primitive that enforces validity at parse time.
type SchemaVersion string

// Supported schema versions.
const (
	SchemaVersionV1 SchemaVersion = "v1"
	// Future versions: SchemaVersionV2 SchemaVersion = "v2"
)

// schemaOrder defines the ordering of versions for comparison.
// Higher numbers represent newer versions.
var schemaOrder = map[SchemaVersion]int{
	SchemaVersionV1: 1,
	// SchemaVersionV2: 2,
}

// ParseSchemaVersion validates and returns a SchemaVersion.
// Returns an error if the version is unknown.
func ParseSchemaVersion(s string) (SchemaVersion, error) {
	v := SchemaVersion(s)
	if _, ok := schemaOrder[v]; !ok {
		return "", fmt.Errorf("unknown schema version: %s", s)
	}
	return v, nil
}

// String returns the string representation of the schema version.
func (v SchemaVersion) String() string {
	return string(v)
}

// IsNil returns true if the schema version is empty.
func (v SchemaVersion) IsNil() bool {
	return v == ""
}

// IsAtLeast returns true if this version is >= other.
// Used when deciding whether a stored record can be decoded as-is:
//   - v1 record read by a v1 reader: readerVersion(v1).IsAtLeast(recordVersion(v1)) = true (OK)
//   - v2 record read by a v1 reader: readerVersion(v1).IsAtLeast(recordVersion(v2)) = false (REJECTED)
func (v SchemaVersion) IsAtLeast(other SchemaVersion) bool {
	thisOrder, thisOK := schemaOrder[v]
	otherOrder, otherOK := schemaOrder[other]

	// Unknown versions are treated as lower than any known version
	if !thisOK {
		return false
	}
	if !otherOK {
		return true // Any known version is >= unknown
	}

	return thisOrder >= otherOrder
}

// SupportedSchemaVersions returns all currently supported schema versions.
func SupportedSchemaVersions() []SchemaVersion {
	return []SchemaVersion{SchemaVersionV1}
}

// CurrentSchemaVersion returns the schema version written for new records.
func CurrentSchemaVersion() SchemaVersion {
	return SchemaVersionV1
}
