package auth

import (
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting an admin JWT.
type AccessTokenPayload struct {
	AdminID string
	Role    enums.AdminRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented by back-office operators.
type AccessTokenClaims struct {
	AdminID string          `json:"admin_id"`
	Role    enums.AdminRole `json:"role"`
	jwt.RegisteredClaims
}
