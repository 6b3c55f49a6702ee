package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	EmployeeID uuid.UUID
	CompanyID  uuid.UUID
	Role       enums.EmployeeRole
	JTI        string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	EmployeeID uuid.UUID          `json:"employee_id"`
	CompanyID  uuid.UUID          `json:"company_id"`
	Role       enums.EmployeeRole `json:"role"`
	jwt.RegisteredClaims
}
