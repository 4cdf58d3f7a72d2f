package models

import "time"

type Course struct {
	ID            int64
	Name          string
	Description   string
	Image         string
	StudentEmails []string
	IssuerID      int64
	CreatedAt     time.Time
}

// StudentCourse is a course as seen from a student's dashboard, together
// with the student's certificate for it.
type StudentCourse struct {
	Course
	IssuerName string
	CertID     int64
	CertStatus CertStatus
	CertHash   *string
}
