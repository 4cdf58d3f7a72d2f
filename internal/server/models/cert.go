package models

import "time"

// CertStatus tracks a certificate through the mint workflow.
type CertStatus string

const (
	// CertNew has never been submitted.
	CertNew CertStatus = "new"
	// CertPending is claimed by a mint request that has not submitted yet.
	CertPending CertStatus = "pending"
	// CertSubmitted has a transaction digest on record but no confirmation.
	CertSubmitted CertStatus = "submitted"
	// CertMinted has a confirmed transaction; CertHash is set.
	CertMinted CertStatus = "minted"
	// CertFailed may be retried.
	CertFailed CertStatus = "failed"
)

type Cert struct {
	ID        int64
	CourseID  int64
	Email     string
	Status    CertStatus
	TxDigest  *string
	CertHash  *string
	MintedAt  *time.Time
	LastError *string
	UpdatedAt time.Time

	// GasObjectID and GasVersion are the gas coin the submitted transaction
	// spends. While that coin is still at GasVersion the transaction can land.
	GasObjectID *string
	GasVersion  *string
}

// MintContext is everything the mint workflow needs about one certificate,
// resolved in a single query across certs, courses and both users.
type MintContext struct {
	CertID          int64
	Status          CertStatus
	CertHash        *string
	StudentEmail    string
	StudentName     string
	StudentKey      string
	IssuerName      string
	CourseImage     string
	CourseCreatedAt time.Time
}

// CertView is a recorded certificate as shown by the public viewer.
type CertView struct {
	CertID       int64     `json:"cert_id"`
	CertHash     string    `json:"cert_hash"`
	MintedAt     time.Time `json:"minted_at"`
	StudentEmail string    `json:"student_email"`
	StudentName  string    `json:"student_name"`
	CourseName   string    `json:"course_name"`
	CourseImage  string    `json:"course_image"`
	IssuerName   string    `json:"issuer_name"`
}
