package domain

import "github.com/google/uuid"

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	PasswordHash string `json:"-"`
}

// NewUser creates a user with a freshly generated identifier.
func NewUser(username, firstName, lastName, passwordHash string) User {
	return User{
		ID:           uuid.NewString(),
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: passwordHash,
	}
}
