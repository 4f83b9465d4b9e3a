package books

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
)

// Repository defines persistence operations for book listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, book *models.Book) (*models.Book, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Book, error)
	MarkSold(ctx context.Context, bookID uuid.UUID) (bool, error)
	Relist(ctx context.Context, bookID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a books repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		return nil, err
	}
	return book, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var books []models.Book
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Book, error) {
	var books []models.Book
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

// MarkSold flips an ACTIVE listing to SOLD. The status guard makes concurrent
// settlements race safely: only one caller observes rowsAffected == 1.
func (r *repository) MarkSold(ctx context.Context, bookID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND status = ?", bookID, enums.BookStatusActive).
		Updates(map[string]any{
			"status":  enums.BookStatusSold,
			"sold_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Relist returns a SOLD listing to ACTIVE, used when a settlement is rolled back.
func (r *repository) Relist(ctx context.Context, bookID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND status = ?", bookID, enums.BookStatusSold).
		Updates(map[string]any{
			"status":  enums.BookStatusActive,
			"sold_at": nil,
		}).Error
}
