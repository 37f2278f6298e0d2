package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/catalog"
)

// Service maintains the server-held cart that checkout reconciles against.
type Service struct {
	store    Store
	products catalog.Repository
}

// NewService creates a cart Service.
func NewService(store Store, products catalog.Repository) *Service {
	return &Service{store: store, products: products}
}

// Get returns the cart of accountID. A missing cart is returned empty.
func (s *Service) Get(ctx context.Context, accountID string) ([]Line, error) {
	snap, err := s.store.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return snap.Lines(), nil
}

// SetItem puts qty units of productID in the cart, replacing any previous
// quantity. The line is priced from the current catalog state.
func (s *Service) SetItem(ctx context.Context, accountID, productID string, qty int) ([]Line, error) {
	if qty < 1 {
		return nil, &InvalidLineError{ProductID: productID, Reason: "quantity must be at least 1"}
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &IntegrityError{Code: CodeMismatchUnknown, ProductID: productID}
		}
		return nil, errors.Wrap(err, "get product")
	}

	lines, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	updated := false
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i] = LineFor(*p, qty)
			updated = true
		}
	}
	if !updated {
		lines = append(lines, LineFor(*p, qty))
	}
	if _, err := New(lines); err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, accountID, lines); err != nil {
		return nil, errors.Wrap(err, "put cart")
	}
	return lines, nil
}

// RemoveItem drops productID from the cart.
func (s *Service) RemoveItem(ctx context.Context, accountID, productID string) ([]Line, error) {
	lines, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	kept := lines[:0]
	for _, l := range lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		if err := s.store.Clear(ctx, accountID); err != nil {
			return nil, errors.Wrap(err, "clear cart")
		}
		return nil, nil
	}
	if err := s.store.Put(ctx, accountID, kept); err != nil {
		return nil, errors.Wrap(err, "put cart")
	}
	return kept, nil
}
