package library

import (
	"context"
)

const (
	DefaultAvailability = "Available"
	DefaultQuantity     = 1
)

type Book struct {
	ID           string
	Name         string
	Type         string
	Language     string
	Availability string
	Quantity     int
}

type CreateBookRequest struct {
	Name         string
	Type         string
	Language     string
	Availability string
	Quantity     *int
}

type UpdateBookRequest struct {
	ID           string
	Name         string
	Type         string
	Language     string
	Availability string
	Quantity     int
}

func (s *Service) ListBooks(ctx context.Context) ([]Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, repoErr("ListBooks", err)
	}
	return books, nil
}

func (s *Service) GetBook(ctx context.Context, id string) (Book, error) {
	b, err := s.repo.GetBookByID(ctx, id)
	if err != nil {
		return Book{}, repoErr("GetBook", err)
	}
	return b, nil
}

/* Stores a new book, filling availability and quantity with their defaults when left out. */
func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (Book, error) {
	newBook := Book{
		Name:         req.Name,
		Type:         req.Type,
		Language:     req.Language,
		Availability: req.Availability,
		Quantity:     DefaultQuantity,
	}
	if newBook.Availability == "" {
		newBook.Availability = DefaultAvailability
	}
	if req.Quantity != nil {
		newBook.Quantity = *req.Quantity
	}
	if newBook.Quantity < 0 {
		return Book{}, ErrResponseBookEntryInvalidQuantity
	}

	created, err := s.repo.CreateBook(ctx, newBook)
	if err != nil {
		return Book{}, repoErr("CreateBook", err)
	}

	s.notify("book_created", func(ctx context.Context) error {
		return s.ntfy.BookCreated(ctx, created)
	})

	return created, nil
}

func (s *Service) UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error) {
	if req.Quantity < 0 {
		return Book{}, ErrResponseBookEntryInvalidQuantity
	}

	updated, err := s.repo.UpdateBook(ctx, Book(req))
	if err != nil {
		return Book{}, repoErr("UpdateBook", err)
	}
	return updated, nil
}

/* Deletes a book. Outstanding assignments keep referencing it. */
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return repoErr("DeleteBook", err)
	}
	return nil
}
