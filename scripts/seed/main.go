package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillbridge/lms-api/internal/models"
	"github.com/skillbridge/lms-api/internal/repository"
	"github.com/skillbridge/lms-api/pkg/config"
	"github.com/skillbridge/lms-api/pkg/database"
)

// Seeds an admin account and a small demo catalog for local development.
func main() {
	var (
		adminEmail    string
		adminPassword string
		withDemo      bool
	)
	flag.StringVar(&adminEmail, "admin-email", "admin@skillbridge.local", "Admin account email")
	flag.StringVar(&adminPassword, "admin-password", "admin12345", "Admin account password")
	flag.BoolVar(&withDemo, "demo", true, "Seed demo teacher, student and catalog")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	courses := repository.NewCourseRepository(db)
	lessons := repository.NewLessonRepository(db)

	admin := ensureUser(ctx, users, adminEmail, adminPassword, "Platform Admin", models.RoleAdmin)
	log.Printf("admin account ready: %s (%s)", admin.Email, admin.ID)

	if !withDemo {
		return
	}

	teacher := ensureUser(ctx, users, "teacher@skillbridge.local", "teacher12345", "Demo Teacher", models.RoleTeacher)
	student := ensureUser(ctx, users, "student@skillbridge.local", "student12345", "Demo Student", models.RoleStudent)
	log.Printf("demo accounts ready: %s, %s", teacher.Email, student.Email)

	course := &models.Course{
		ID:           uuid.NewString(),
		Slug:         "introduction-to-go",
		Title:        "Introduction to Go",
		Description:  "A hands-on tour of the Go programming language.",
		Category:     "programming",
		Level:        "BEGINNER",
		PriceCents:   0,
		Currency:     "USD",
		InstructorID: teacher.ID,
		Status:       models.CourseStatusPublished,
	}
	exists, err := courses.SlugExists(ctx, course.Slug)
	if err != nil {
		log.Fatalf("failed to check demo course: %v", err)
	}
	if exists {
		log.Printf("demo course already seeded: %s", course.Slug)
		return
	}
	if err := courses.Create(ctx, course); err != nil {
		log.Fatalf("failed to create demo course: %v", err)
	}

	titles := []struct {
		title string
		free  bool
	}{
		{"Getting Started", true},
		{"Types and Control Flow", false},
		{"Concurrency Basics", false},
	}
	for i, t := range titles {
		lesson := &models.Lesson{
			CourseID:        course.ID,
			Title:           t.title,
			OrderIndex:      i + 1,
			IsFree:          t.free,
			Status:          models.LessonStatusPublished,
			DurationMinutes: 25,
		}
		if err := lessons.Create(ctx, lesson); err != nil {
			log.Fatalf("failed to create demo lesson %q: %v", t.title, err)
		}
	}
	log.Printf("demo catalog seeded: %s with %d lessons", course.Slug, len(titles))
}

func ensureUser(ctx context.Context, users *repository.UserRepository, email, password, name string, role models.UserRole) *models.User {
	if existing, err := users.FindByEmail(ctx, email); err == nil {
		return existing
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password for %s: %v", email, err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     name,
		Role:         role,
		Status:       models.UserStatusActive,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("failed to create user %s: %v", email, err)
	}
	return user
}
