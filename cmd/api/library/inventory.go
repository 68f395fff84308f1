package library

import (
	"context"
	"errors"
)

/* Applies quantity += delta to one book as a single conditional update. A change that would leave the stock negative is rejected with InsufficientStock and writes nothing. */
func (s *Service) AdjustStock(ctx context.Context, bookID string, delta int) (Book, error) {
	b, err := s.repo.AdjustBookQuantity(ctx, bookID, delta)
	if err != nil {
		if errors.Is(err, ErrResponseInsufficientStock) {
			return b, NewErrInsufficientStock(b)
		}
		return Book{}, repoErr("AdjustStock", err)
	}
	return b, nil
}
