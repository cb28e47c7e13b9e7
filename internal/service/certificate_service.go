package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
	"github.com/skillbridge/lms-api/pkg/export"
	"github.com/skillbridge/lms-api/pkg/storage"
)

type certificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) error
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
}

type certificateUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// DownloadLink is a time-limited token for fetching a certificate file.
type DownloadLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CertificateService issues completion certificates and mints signed
// download tokens for them.
type CertificateService struct {
	repo    certificateRepository
	courses courseReader
	users   certificateUserReader
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	pdf     *export.CertificatePDF
	logger  *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(repo certificateRepository, courses courseReader, users certificateUserReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		repo:    repo,
		courses: courses,
		users:   users,
		store:   store,
		signer:  signer,
		pdf:     export.NewCertificatePDF(),
		logger:  logger,
	}
}

// Issue renders and stores a completion certificate for the enrollment.
func (s *CertificateService) Issue(ctx context.Context, enrollment *models.Enrollment, course *models.Course, student *models.User) (*models.Certificate, error) {
	cert := &models.Certificate{
		ID:           uuid.NewString(),
		EnrollmentID: enrollment.ID,
		StudentID:    student.ID,
		CourseID:     course.ID,
		IssuedAt:     time.Now().UTC(),
	}

	instructorName := ""
	if instructor, err := s.users.FindByID(ctx, course.InstructorID); err == nil {
		instructorName = instructor.FullName
	} else {
		s.logger.Warn("failed to load instructor for certificate", zap.String("course_id", course.ID), zap.Error(err))
	}

	completedAt := cert.IssuedAt
	if enrollment.CompletedAt != nil {
		completedAt = *enrollment.CompletedAt
	}

	content, err := s.pdf.Render(export.CertificateData{
		CertificateID:  cert.ID,
		StudentName:    student.FullName,
		CourseTitle:    course.Title,
		InstructorName: instructorName,
		CompletedAt:    completedAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	path, err := s.store.Save(fmt.Sprintf("%s.pdf", enrollment.ID), content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	cert.FilePath = path

	if err := s.repo.Create(ctx, cert); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record certificate")
	}
	return cert, nil
}

// Link returns a signed download token for a certificate. Admins, the
// certificate's student, and the course instructor may request one.
func (s *CertificateService) Link(ctx context.Context, claims *models.JWTClaims, certificateID string) (*DownloadLink, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	cert, err := s.repo.FindByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}

	if !s.canAccess(ctx, claims, cert) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to download this certificate")
	}

	token, expiresAt, err := s.signer.Generate(cert.ID, cert.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &DownloadLink{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *CertificateService) canAccess(ctx context.Context, claims *models.JWTClaims, cert *models.Certificate) bool {
	if claims.Role == models.RoleAdmin || claims.UserID == cert.StudentID {
		return true
	}
	if claims.Role != models.RoleTeacher {
		return false
	}
	course, err := s.courses.FindByID(ctx, cert.CourseID)
	if err != nil {
		return false
	}
	return course.InstructorID == claims.UserID
}

// Resolve validates a download token and opens the referenced file. The
// caller must close the returned file.
func (s *CertificateService) Resolve(ctx context.Context, token string) (*models.Certificate, *os.File, error) {
	certID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	cert, err := s.repo.FindByID(ctx, certID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if cert.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	file, err := s.store.Open(cert.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate file")
	}
	return cert, file, nil
}
