package receipt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "assent/pkg/domain-errors"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("unit-test-signing-key", "test-issuer")
	require.NoError(t, err)
	return issuer
}

func Test_IssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)

	recordID := uuid.NewString()
	prefs := map[string]bool{"analytics": true, "marketing": false, "necessary": true}
	expires := time.Now().Add(24 * time.Hour)

	receipt, err := issuer.Issue(Grant{
		RecordID:    recordID,
		SubjectID:   "visitor-42",
		Purposes:    []string{"necessary", "analytics"},
		Preferences: prefs,
		ExpiresAt:   &expires,
	})
	require.NoError(t, err)
	require.NotEmpty(t, receipt)

	claims, err := issuer.Verify(receipt)
	require.NoError(t, err)
	assert.Equal(t, recordID, claims.RecordID)
	assert.Equal(t, "visitor-42", claims.Subject)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.Equal(t, []string{"analytics", "necessary"}, claims.Purposes, "purposes are canonically sorted")
	assert.Equal(t, HashPreferences(prefs), claims.PrefsHash)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, expires, claims.ExpiresAt.Time, time.Minute)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Minute)
}

func Test_Verify_InvalidReceipt(t *testing.T) {
	issuer := newTestIssuer(t)

	_, err := issuer.Verify("not-a-receipt")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeInvalidConsent, "invalid receipt"))
}

func Test_Verify_ExpiredReceipt(t *testing.T) {
	issuer := newTestIssuer(t)

	expired := time.Now().Add(-time.Hour)
	receipt, err := issuer.Issue(Grant{
		RecordID:  uuid.NewString(),
		SubjectID: "visitor-42",
		ExpiresAt: &expired,
	})
	require.NoError(t, err)

	_, err = issuer.Verify(receipt)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeInvalidConsent, "receipt has expired"))
}

func Test_Verify_NoExpiry(t *testing.T) {
	issuer := newTestIssuer(t)

	receipt, err := issuer.Issue(Grant{RecordID: uuid.NewString(), SubjectID: "visitor-42"})
	require.NoError(t, err)

	claims, err := issuer.Verify(receipt)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func Test_Verify_WrongKey(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewIssuer("a-different-signing-key", "test-issuer")
	require.NoError(t, err)

	receipt, err := issuer.Issue(Grant{RecordID: uuid.NewString()})
	require.NoError(t, err)

	_, err = other.Verify(receipt)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeInvalidConsent, "invalid receipt"))
}

func Test_Verify_RejectsUnsignedToken(t *testing.T) {
	issuer := newTestIssuer(t)

	// A token with alg=none must never verify, whatever its claims say.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RecordID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "visitor-42",
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConsent))
}

func Test_Issue_RequiresRecordID(t *testing.T) {
	issuer := newTestIssuer(t)

	_, err := issuer.Issue(Grant{SubjectID: "visitor-42"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_NewIssuer_RejectsShortKey(t *testing.T) {
	_, err := NewIssuer("short", "test-issuer")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestHashPreferences(t *testing.T) {
	a := HashPreferences(map[string]bool{"analytics": true, "marketing": false})
	b := HashPreferences(map[string]bool{"marketing": false, "analytics": true})
	c := HashPreferences(map[string]bool{"analytics": true, "marketing": true})

	assert.Equal(t, a, b, "key order must not change the digest")
	assert.NotEqual(t, a, c, "a flipped decision must change the digest")
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashPreferences(nil))
}
