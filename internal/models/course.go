package models

import "time"

// CourseStatus reflects the publication lifecycle of a course.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "DRAFT"
	CourseStatusPublished CourseStatus = "PUBLISHED"
	CourseStatusArchived  CourseStatus = "ARCHIVED"
)

// Course represents a catalog entry. The instructor reference is set at
// creation and never reassigned.
type Course struct {
	ID           string       `db:"id" json:"id"`
	Slug         string       `db:"slug" json:"slug"`
	Title        string       `db:"title" json:"title"`
	Description  string       `db:"description" json:"description"`
	Category     string       `db:"category" json:"category"`
	Level        string       `db:"level" json:"level"`
	PriceCents   int64        `db:"price_cents" json:"price_cents"`
	Currency     string       `db:"currency" json:"currency"`
	InstructorID string       `db:"instructor_id" json:"instructor_id"`
	Status       CourseStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with instructor and aggregate info.
type CourseDetail struct {
	Course
	InstructorName string  `db:"instructor_name" json:"instructor_name"`
	LessonCount    int     `db:"lesson_count" json:"lesson_count"`
	EnrolledCount  int     `db:"enrolled_count" json:"enrolled_count"`
	RatingCount    int     `db:"rating_count" json:"rating_count"`
	RatingAverage  float64 `db:"rating_average" json:"rating_average"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Category     string
	Level        string
	InstructorID string
	Status       CourseStatus
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CourseRating is a single student's rating of a course. A student rates a
// course at most once.
type CourseRating struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Stars     int       `db:"stars" json:"stars"`
	Comment   string    `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
