// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a registered issuer or student.
//
// Address holds the key material generated for the user at signup. The mint
// workflow derives the on-chain address from it, so it is effectively a
// secret key despite the column name.
type User struct {
	ID              int64
	Email           string
	PasswordHash    string
	FullName        string
	Role            string
	Address         string
	InstitutionName *string
	CreatedAt       time.Time
}

// Identity is what the session authenticator attaches to a request.
type Identity struct {
	ID    int64
	Email string
	Role  string
}
