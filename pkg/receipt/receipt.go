// Package receipt issues signed consent receipts. A receipt is a compact
// JWS the caller can hand to the subject or archive as proof of the grant;
// verification needs only the signing key, not the storage backend.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "assent/pkg/domain-errors"
)

// MinKeyLength is the minimum HMAC signing key length in bytes.
const MinKeyLength = 16

const defaultIssuer = "assent"

// Claims are the verifiable contents of a consent receipt. PrefsHash binds
// the receipt to the exact preference map without embedding it.
type Claims struct {
	RecordID  string   `json:"record_id"`
	Purposes  []string `json:"purposes,omitempty"`
	PrefsHash string   `json:"prefs_hash"`
	jwt.RegisteredClaims
}

// Grant describes the consent decision a receipt attests to.
type Grant struct {
	RecordID  string
	SubjectID string
	// Purposes the subject granted, in any order.
	Purposes []string
	// Preferences is the full decision map including denials.
	Preferences map[string]bool
	GivenAt     time.Time
	// ExpiresAt bounds the receipt's validity. Nil receipts never expire.
	ExpiresAt *time.Time
}

// Issuer signs and verifies consent receipts with HS256.
type Issuer struct {
	signingKey []byte
	issuer     string
}

// NewIssuer creates an issuer. The signing key must be at least
// MinKeyLength bytes. An empty issuer name defaults to "assent".
func NewIssuer(signingKey string, issuer string) (*Issuer, error) {
	if len(signingKey) < MinKeyLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"receipt signing key must be at least %d bytes", MinKeyLength)
	}
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}, nil
}

// Issue signs a receipt for the grant. GivenAt defaults to now.
func (i *Issuer) Issue(g Grant) (string, error) {
	if g.RecordID == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "receipt requires a record ID")
	}
	if g.GivenAt.IsZero() {
		g.GivenAt = time.Now()
	}

	purposes := append([]string(nil), g.Purposes...)
	sort.Strings(purposes)

	claims := Claims{
		RecordID:  g.RecordID,
		Purposes:  purposes,
		PrefsHash: HashPreferences(g.Preferences),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  g.SubjectID,
			Issuer:   i.issuer,
			IssuedAt: jwt.NewNumericDate(g.GivenAt),
		},
	}
	if g.ExpiresAt != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*g.ExpiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and validity window and returns the claims.
func (i *Issuer) Verify(receipt string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(receipt, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidConsent, "receipt has expired")
		}
		return nil, dErrors.New(dErrors.CodeInvalidConsent, "invalid receipt")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidConsent, "invalid receipt")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidConsent, "invalid receipt claims")
	}

	return claims, nil
}

// HashPreferences computes the canonical SHA-256 digest of a preference
// map. Key order does not affect the result.
func HashPreferences(prefs map[string]bool) string {
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%t;", k, prefs[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
