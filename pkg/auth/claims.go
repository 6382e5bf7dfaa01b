package auth

import "github.com/golang-jwt/jwt/v5"

// OperatorSubject is the subject of tokens minted for the shared dashboard password.
const OperatorSubject = "operator"

// AccessTokenClaims is the JWT body. The jti doubles as the Redis session id.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
}
