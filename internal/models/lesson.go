package models

import "time"

// LessonStatus reflects the publication lifecycle of a lesson.
type LessonStatus string

const (
	LessonStatusDraft     LessonStatus = "DRAFT"
	LessonStatusPublished LessonStatus = "PUBLISHED"
	LessonStatusArchived  LessonStatus = "ARCHIVED"
)

// Lesson is a content unit owned by exactly one course. The order index
// determines display sequence and is unique within the course. Free lessons
// bypass enrollment checks entirely.
type Lesson struct {
	ID              string       `db:"id" json:"id"`
	CourseID        string       `db:"course_id" json:"course_id"`
	Title           string       `db:"title" json:"title"`
	OrderIndex      int          `db:"order_index" json:"order_index"`
	IsFree          bool         `db:"is_free" json:"is_free"`
	Status          LessonStatus `db:"status" json:"status"`
	VideoURL        string       `db:"video_url" json:"video_url,omitempty"`
	Transcript      string       `db:"transcript" json:"transcript,omitempty"`
	DurationMinutes int          `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// LessonSummary is the listing shape: content payloads stripped, with an
// accessibility flag computed per caller.
type LessonSummary struct {
	ID              string       `json:"id"`
	CourseID        string       `json:"course_id"`
	Title           string       `json:"title"`
	OrderIndex      int          `json:"order_index"`
	IsFree          bool         `json:"is_free"`
	Status          LessonStatus `json:"status"`
	DurationMinutes int          `json:"duration_minutes"`
	Accessible      bool         `json:"accessible"`
}

// Summary strips content payloads from a lesson.
func (l *Lesson) Summary(accessible bool) LessonSummary {
	return LessonSummary{
		ID:              l.ID,
		CourseID:        l.CourseID,
		Title:           l.Title,
		OrderIndex:      l.OrderIndex,
		IsFree:          l.IsFree,
		Status:          l.Status,
		DurationMinutes: l.DurationMinutes,
		Accessible:      accessible,
	}
}
