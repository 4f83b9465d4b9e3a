package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
	"github.com/afribook/afribook-backend/pkg/pagination"
)

type fakeNotificationsRepo struct {
	created   []models.Notification
	createErr error
	markRead  bool
}

func (f *fakeNotificationsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeNotificationsRepo) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	n.ID = uuid.New()
	f.created = append(f.created, *n)
	return n, nil
}

func (f *fakeNotificationsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeNotificationsRepo) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Notification, error) {
	return f.created, nil
}

func (f *fakeNotificationsRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	return int64(len(f.created)), nil
}

func (f *fakeNotificationsRepo) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	return f.markRead, nil
}

func (f *fakeNotificationsRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return int64(len(f.created)), nil
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, logger.New(logger.Options{ServiceName: "notifications-test"}))
	require.NoError(t, err)
	return svc
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(t, &fakeNotificationsRepo{})

	_, err := svc.Create(context.Background(), CreateInput{Type: enums.NotificationTypeNewSale})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(context.Background(), CreateInput{UserID: uuid.New(), Type: "bogus"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreatePersistsNotification(t *testing.T) {
	repo := &fakeNotificationsRepo{}
	svc := newTestService(t, repo)

	created, err := svc.Create(context.Background(), CreateInput{
		UserID: uuid.New(),
		Type:   enums.NotificationTypeNewSale,
		Title:  "You made a sale",
		Link:   "/orders/abc",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "/orders/abc", repo.created[0].Link)
}

func TestEmitSwallowsFailures(t *testing.T) {
	repo := &fakeNotificationsRepo{createErr: errors.New("db down")}
	svc := newTestService(t, repo)

	// Must not panic or propagate the error.
	svc.Emit(context.Background(), CreateInput{
		UserID: uuid.New(),
		Type:   enums.NotificationTypeWalletDeposit,
		Title:  "Deposit received",
	})
	assert.Empty(t, repo.created)
}

func TestMarkReadNotFound(t *testing.T) {
	svc := newTestService(t, &fakeNotificationsRepo{markRead: false})

	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
