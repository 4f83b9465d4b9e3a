package checkout

import (
	"github.com/google/uuid"

	"github.com/afribook/afribook-backend/pkg/db/models"
	"github.com/afribook/afribook-backend/pkg/enums"
	pkgerrors "github.com/afribook/afribook-backend/pkg/errors"
)

// SplitCart groups the requested books into one sub-order per seller.
// Books that are missing or no longer ACTIVE are dropped and reported back so
// the caller can tell the buyer what disappeared. A buyer requesting their own
// listing rejects the whole cart.
func SplitCart(buyerID uuid.UUID, requestedIDs []uuid.UUID, found []models.Book) (*SplitResult, error) {
	byID := make(map[uuid.UUID]models.Book, len(found))
	for _, book := range found {
		byID[book.ID] = book
	}

	seen := make(map[uuid.UUID]bool, len(requestedIDs))
	groupIndex := make(map[uuid.UUID]int)
	result := &SplitResult{}

	for _, id := range requestedIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		book, ok := byID[id]
		if !ok {
			result.DroppedBookIDs = append(result.DroppedBookIDs, id)
			continue
		}
		if book.SellerID == buyerID {
			return nil, pkgerrors.New(pkgerrors.CodeSelfPurchase, "buyer owns a requested listing").
				WithDetails(map[string]any{"book_id": book.ID})
		}
		if book.Status != enums.BookStatusActive {
			result.DroppedBookIDs = append(result.DroppedBookIDs, id)
			continue
		}

		idx, exists := groupIndex[book.SellerID]
		if !exists {
			idx = len(result.Groups)
			groupIndex[book.SellerID] = idx
			result.Groups = append(result.Groups, SellerGroup{SellerID: book.SellerID})
		}
		result.Groups[idx].Books = append(result.Groups[idx].Books, book)
		result.Groups[idx].Subtotal += book.Price
	}

	if len(result.Groups) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNoValidItems, "no purchasable items remain").
			WithDetails(map[string]any{"dropped_book_ids": result.DroppedBookIDs})
	}
	return result, nil
}
