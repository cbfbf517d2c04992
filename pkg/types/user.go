package types

import "time"

// UserRole represents the different front-desk roles
type UserRole string

const (
	RoleReceptionist  UserRole = "receptionist"
	RoleDoctor        UserRole = "doctor"
	RoleAccountant    UserRole = "accountant"
	RoleAdministrator UserRole = "administrator"
)

// UserClaims represents the authenticated caller extracted from a bearer token
type UserClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
}

// AuthToken represents an issued access token
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}
