package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const hmacIssuer = "reelsched-api"

// HMACClaims are the claims of tokens signed with the shared secret
type HMACClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// HMACVerifier validates HS256 tokens signed with JWT_SECRET. Used in
// development and by service-to-service callers.
type HMACVerifier struct {
	secret []byte
	ttl    time.Duration
}

func NewHMACVerifier(secret string, ttl time.Duration) *HMACVerifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &HMACVerifier{secret: []byte(secret), ttl: ttl}
}

func (v *HMACVerifier) Verify(tokenString string) (*Identity, error) {
	claims := &HMACClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Identity{UserID: userID, Email: claims.Email}, nil
}

// Issue signs a token for userID
func (v *HMACVerifier) Issue(userID, email string) (string, error) {
	now := time.Now()
	claims := HMACClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    hmacIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
