package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/api/middleware"
	"github.com/afribook/afribook-backend/api/responses"
	"github.com/afribook/afribook-backend/api/validators"
	"github.com/afribook/afribook-backend/internal/books"
	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
	"github.com/afribook/afribook-backend/pkg/logger"
)

// BookCreate lists a book for sale under the caller's account.
func BookCreate(repo books.Repository, currency enums.Currency, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var payload bookCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		book, err := repo.Create(r.Context(), &models.Book{
			SellerID: sellerID,
			Title:    payload.Title,
			Author:   payload.Author,
			Price:    payload.Price,
			Currency: currency,
			Status:   enums.BookStatusActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newBookResponse(book))
	}
}

// BookList returns the caller's own listings, newest first.
func BookList(repo books.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		list, err := repo.ListBySeller(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]bookResponse, 0, len(list))
		for i := range list {
			out = append(out, newBookResponse(&list[i]))
		}
		responses.WriteSuccess(w, map[string]any{"books": out})
	}
}

type bookCreateRequest struct {
	Title  string `json:"title" validate:"required,min=1,max=500"`
	Author string `json:"author" validate:"required,min=1,max=200"`
	Price  int64  `json:"price" validate:"required,gt=0"`
}

type bookResponse struct {
	ID        uuid.UUID  `json:"id"`
	SellerID  uuid.UUID  `json:"seller_id"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	Price     int64      `json:"price"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	SoldAt    *time.Time `json:"sold_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func newBookResponse(b *models.Book) bookResponse {
	return bookResponse{
		ID:        b.ID,
		SellerID:  b.SellerID,
		Title:     b.Title,
		Author:    b.Author,
		Price:     b.Price,
		Currency:  string(b.Currency),
		Status:    string(b.Status),
		SoldAt:    b.SoldAt,
		CreatedAt: b.CreatedAt,
	}
}
