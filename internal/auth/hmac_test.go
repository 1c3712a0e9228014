package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifier_RoundTrip(t *testing.T) {
	v := NewHMACVerifier("s3cret", time.Hour)

	token, err := v.Issue("user-1", "u1@example.com")
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "u1@example.com", id.Email)
}

func TestHMACVerifier_Rejects(t *testing.T) {
	v := NewHMACVerifier("s3cret", time.Hour)

	other, err := NewHMACVerifier("different", time.Hour).Issue("user-1", "")
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewHMACVerifier("s3cret", time.Nanosecond).Issue("user-1", "")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, HMACClaims{UserID: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type staticVerifier struct {
	id  *Identity
	err error
}

func (s staticVerifier) Verify(string) (*Identity, error) { return s.id, s.err }

func TestChain(t *testing.T) {
	fail := staticVerifier{err: errors.New("nope")}
	ok := staticVerifier{id: &Identity{UserID: "u"}}

	id, err := Chain{fail, ok}.Verify("t")
	require.NoError(t, err)
	assert.Equal(t, "u", id.UserID)

	_, err = Chain{fail}.Verify("t")
	assert.EqualError(t, err, "nope")

	_, err = Chain{}.Verify("t")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
