package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service exposes the order read surface of a customer.
type Service struct {
	orders Repository
}

// NewService creates an order Service backed by the given Repository.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// List returns all orders of a customer, newest first.
func (s *Service) List(ctx context.Context, customerID string) ([]*Order, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Get resolves idOrCode to the orders it names. An order id yields one
// order; a checkout code yields every sub-order of that checkout. Orders of
// other customers are reported as not found.
func (s *Service) Get(ctx context.Context, customerID, idOrCode string) ([]*Order, error) {
	if _, err := uuid.Parse(idOrCode); err == nil {
		o, err := s.orders.GetByID(ctx, idOrCode)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, errors.Wrap(err, "get order")
		}
		if o.CustomerID != customerID {
			return nil, ErrNotFound
		}
		return []*Order{o}, nil
	}

	orders, err := s.OwnedByCode(ctx, customerID, idOrCode)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// OwnedByCode returns the sub-orders of checkout code owned by customerID.
func (s *Service) OwnedByCode(ctx context.Context, customerID, code string) ([]*Order, error) {
	orders, err := s.orders.ListByCode(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "list orders by code")
	}
	owned := orders[:0]
	for _, o := range orders {
		if o.CustomerID == customerID {
			owned = append(owned, o)
		}
	}
	if len(owned) == 0 {
		return nil, ErrNotFound
	}
	return owned, nil
}
