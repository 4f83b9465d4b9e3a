package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/pagination"
)

// CreateInput carries the fields for a new notification.
type CreateInput struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	Link    string
}

// Service defines notification operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Notification, error)
	Emit(ctx context.Context, input CreateInput)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService builds a notifications service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logger: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Notification, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	notification := &models.Notification{
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
		Link:    input.Link,
	}
	return s.repo.Create(ctx, notification)
}

// Emit creates a notification and swallows failures. Fan-out must never make
// a settlement or wallet operation fail.
func (s *service) Emit(ctx context.Context, input CreateInput) {
	if _, err := s.Create(ctx, input); err != nil {
		s.logger.Error(s.logger.WithUserID(ctx, input.UserID.String()), "notification fan-out failed", err)
	}
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Notification, error) {
	return s.repo.ListByUser(ctx, userID, params)
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	updated, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found or already read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
