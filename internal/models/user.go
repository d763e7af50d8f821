package models

import "time"

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserInfo describes the authenticated user in responses and push events.
type UserInfo struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Info converts a user record into its response shape.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, TenantID: u.TenantID, Email: u.Email, FullName: u.FullName}
}
