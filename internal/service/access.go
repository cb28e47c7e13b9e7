package service

import (
	"github.com/skillbridge/lms-api/internal/models"
)

// LessonAccessDecision is the outcome of the lesson gate.
type LessonAccessDecision int

const (
	// LessonAccessGranted means the caller may read the lesson content.
	LessonAccessGranted LessonAccessDecision = iota
	// LessonAccessNotFound hides unpublished lessons from the public read
	// path, owners included. Management paths use an unchecked read.
	LessonAccessNotFound
	// LessonAccessUnauthenticated means a credential is required.
	LessonAccessUnauthenticated
	// LessonAccessDenied means the caller lacks an active enrollment.
	LessonAccessDenied
)

// CanManageCourse reports whether the caller may administer a course:
// admins always, teachers only for courses they instruct.
func CanManageCourse(claims *models.JWTClaims, course *models.Course) bool {
	if claims == nil || course == nil {
		return false
	}
	if claims.Role == models.RoleAdmin {
		return true
	}
	return claims.Role == models.RoleTeacher && claims.UserID == course.InstructorID
}

// CanModifyPost reports whether the caller may update or delete a community
// post: the author (organizer, for events) or an admin.
func CanModifyPost(claims *models.JWTClaims, post *models.Post) bool {
	if claims == nil || post == nil {
		return false
	}
	return claims.Role == models.RoleAdmin || claims.UserID == post.AuthorID
}

// CanModifyComment reports whether the caller may delete a comment: the
// comment author, the post author, or an admin.
func CanModifyComment(claims *models.JWTClaims, comment *models.Comment, post *models.Post) bool {
	if claims == nil || comment == nil {
		return false
	}
	if claims.Role == models.RoleAdmin || claims.UserID == comment.AuthorID {
		return true
	}
	return post != nil && claims.UserID == post.AuthorID
}

// DecideLessonAccess evaluates the lesson gate. The rules fire in order:
//
//  1. unpublished lessons read as not found;
//  2. free lessons are open to anyone, anonymous callers included;
//  3. everything past this point requires a credential;
//  4. admins and the course instructor see all of their course;
//  5. otherwise an enrollment entry with status ACTIVE is required.
//
// enrollment is the caller's ledger entry for the owning course, nil when
// absent or when the caller is anonymous.
func DecideLessonAccess(claims *models.JWTClaims, course *models.Course, lesson *models.Lesson, enrollment *models.Enrollment) LessonAccessDecision {
	if lesson == nil || lesson.Status != models.LessonStatusPublished {
		return LessonAccessNotFound
	}
	if lesson.IsFree {
		return LessonAccessGranted
	}
	if claims == nil {
		return LessonAccessUnauthenticated
	}
	if CanManageCourse(claims, course) {
		return LessonAccessGranted
	}
	if enrollment != nil && enrollment.Status == models.EnrollmentStatusActive {
		return LessonAccessGranted
	}
	return LessonAccessDenied
}
