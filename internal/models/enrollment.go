package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// EnrollmentKind distinguishes free from paid registrations.
type EnrollmentKind string

const (
	EnrollmentKindFree EnrollmentKind = "FREE"
	EnrollmentKindPaid EnrollmentKind = "PAID"
)

// Enrollment is the authoritative record of a student's registration to a
// course. A (course, student) pair appears at most once; the table carries a
// unique index on that pair.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	CourseID      string           `db:"course_id" json:"course_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	Kind          EnrollmentKind   `db:"kind" json:"kind"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	Progress      int              `db:"progress" json:"progress"`
	EnrolledAt    time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt   *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CertificateID *string          `db:"certificate_id" json:"certificate_id,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseTitle  string `db:"course_title" json:"course_title"`
	CourseSlug   string `db:"course_slug" json:"course_slug"`
}

// EnrollmentFilter provides filters for listing a course's ledger.
type EnrollmentFilter struct {
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentCourse is the student-side view of an enrollment, computed on read
// by joining the ledger against the catalog. It replaces the denormalized
// per-account mirror.
type StudentCourse struct {
	CourseID      string           `db:"course_id" json:"course_id"`
	Slug          string           `db:"slug" json:"slug"`
	Title         string           `db:"title" json:"title"`
	Category      string           `db:"category" json:"category"`
	Level         string           `db:"level" json:"level"`
	EnrollmentID  string           `db:"enrollment_id" json:"enrollment_id"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	Progress      int              `db:"progress" json:"progress"`
	EnrolledAt    time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt   *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CertificateID *string          `db:"certificate_id" json:"certificate_id,omitempty"`
}

// Certificate records an issued completion certificate and its stored file.
type Certificate struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	FilePath     string    `db:"file_path" json:"-"`
	IssuedAt     time.Time `db:"issued_at" json:"issued_at"`
}
