package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtSecretKey signs every token. main() loads it from config
// (BT_JWT_SECRET) before the router starts taking traffic.
var jwtSecretKey []byte

// tokenTTL is how long an issued token stays valid.
var tokenTTL = 72 * time.Hour

// Configure sets the signing secret and token lifetime.
// Must be called once at startup, before any Generate/Validate.
func Configure(secret string, ttl time.Duration) {
	jwtSecretKey = []byte(secret)
	if ttl > 0 {
		tokenTTL = ttl
	}
}

// TokenClaims is what we trust out of a validated token.
type TokenClaims struct {
	UserID int64
	OrgID  int64
	Role   string
}

// GenerateToken creates a new JWT for a given user, carrying the org and
// role so middleware can scope queries without a DB hit on every request.
func GenerateToken(userID, orgID int64, role string) (string, error) {
	// 1. Create the claims (the data inside the token).
	claims := jwt.MapClaims{
		"sub":  userID, // "sub" (Subject) is the standard claim for User ID
		"org":  orgID,
		"role": role,
		"exp":  time.Now().Add(tokenTTL).Unix(),
		"iat":  time.Now().Unix(), // "iat" (Issued At)
	}

	// 2. Create the token object, signed with HS256.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// 3. Sign the token with our secret key.
	tokenString, err := token.SignedString(jwtSecretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken parses and validates a JWT token string.
// It returns the user/org/role claims if the token is valid.
func ValidateToken(tokenString string) (TokenClaims, error) {
	// 1. Parse the token string.
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 2. Check the signing method.
		// This ensures the token was signed with the same algorithm we use.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}

		// 3. Return our secret key for validation.
		return jwtSecretKey, nil
	})
	if err != nil {
		return TokenClaims{}, err // Token parsing failed (e.g., expired, malformed)
	}

	// 4. Check if the token is valid and get the claims.
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return TokenClaims{}, errors.New("invalid token")
	}

	// 5. Pull the numeric claims out. JSON numbers arrive as float64.
	sub, ok := claims["sub"].(float64)
	if !ok {
		return TokenClaims{}, errors.New("invalid subject claim")
	}
	org, ok := claims["org"].(float64)
	if !ok {
		return TokenClaims{}, errors.New("invalid org claim")
	}
	role, ok := claims["role"].(string)
	if !ok {
		return TokenClaims{}, errors.New("invalid role claim")
	}

	return TokenClaims{
		UserID: int64(sub),
		OrgID:  int64(org),
		Role:   role,
	}, nil
}
