package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AuthClaims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	TokenID string   `json:"jti"`
}

// PublicUser is the projection returned by /auth/me and embedded as the
// presentation owner. It never carries the password hash.
type PublicUser struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	CreatedAt       time.Time `json:"created_at"`
	PresentationIDs []string  `json:"presentation_ids"`
}

// OwnerRef is the minimal owner projection attached to a fetched presentation.
type OwnerRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
