package library

import (
	"context"
	"errors"
	"time"
)

// LineItem is one {book, quantity} pair of a borrow or return.
type LineItem struct {
	BookID   string
	Quantity int
}

// Assignment is a loan record. It is created whole by BorrowBooks and
// deleted whole by ReturnBooks.
type Assignment struct {
	ID         string
	UserID     string
	Books      []LineItem
	DueDate    string
	AssignedAt time.Time
}

/* Sums the quantities of every line item of the assignment. */
func (a Assignment) Units() int {
	units := 0
	for _, item := range a.Books {
		units += item.Quantity
	}
	return units
}

type BorrowRequest struct {
	UserID  string
	Books   []LineItem
	DueDate string
}

type ReturnRequest struct {
	UserID       string
	AssignmentID string
	Books        []LineItem
}

// BorrowedBook is the current record of a lent book, flattened with the
// loan it belongs to. Book.ID is empty when the book was deleted after the
// loan was made.
type BorrowedBook struct {
	Book         Book
	BookID       string
	Quantity     int
	DueDate      string
	AssignmentID string
}

func filledLineItems(items []LineItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.BookID == "" || item.Quantity <= 0 {
			return false
		}
	}
	return true
}

/* Lends the requested books to a user. Every line item is validated against the current stock before anything is written; the decrements are then applied one by one as conditional updates and undone if any of them, or the assignment insert, fails. */
func (s *Service) BorrowBooks(ctx context.Context, req BorrowRequest) (Assignment, error) {
	if req.UserID == "" || !filledLineItems(req.Books) {
		return Assignment{}, ErrResponseAssignEntryBlankFields
	}

	if _, err := s.repo.GetUserByID(ctx, req.UserID); err != nil {
		return Assignment{}, repoErr("BorrowBooks", err)
	}

	for _, item := range req.Books {
		b, err := s.repo.GetBookByID(ctx, item.BookID)
		if err != nil {
			return Assignment{}, repoErr("BorrowBooks", err)
		}
		if item.Quantity > b.Quantity {
			return Assignment{}, NewErrInsufficientStock(b)
		}
	}

	applied := make([]LineItem, 0, len(req.Books))
	for _, item := range req.Books {
		if _, err := s.AdjustStock(ctx, item.BookID, -item.Quantity); err != nil {
			s.restock(ctx, applied)
			return Assignment{}, err
		}
		applied = append(applied, item)
	}

	newAssignment := Assignment{
		UserID:     req.UserID,
		Books:      append([]LineItem(nil), req.Books...),
		DueDate:    req.DueDate,
		AssignedAt: time.Now().UTC().Round(time.Millisecond),
	}
	created, err := s.repo.CreateAssignment(ctx, newAssignment)
	if err != nil {
		s.restock(ctx, applied)
		return Assignment{}, repoErr("BorrowBooks", err)
	}

	s.logger.Info("books assigned", "assignment_id", created.ID, "user_id", created.UserID, "units", created.Units())
	s.notify("books_assigned", func(ctx context.Context) error {
		return s.ntfy.BooksAssigned(ctx, created)
	})

	return created, nil
}

/* Gives back the stock taken by a borrow that could not complete. Cancellation of ctx is ignored so a canceled request still gets its decrements undone. */
func (s *Service) restock(ctx context.Context, items []LineItem) {
	ctx = context.WithoutCancel(ctx)
	for _, item := range items {
		if _, err := s.repo.AdjustBookQuantity(ctx, item.BookID, item.Quantity); err != nil {
			s.logger.Error("restocking after failed borrow", "book_id", item.BookID, "quantity", item.Quantity, "error", err)
		}
	}
}

/* Lists every line item lent to a user, one entry per assignment and book. A user with no assignments gets ErrResponseNoBorrowedBooks. */
func (s *Service) ListBorrowedBooks(ctx context.Context, userID string) ([]BorrowedBook, error) {
	assignments, err := s.repo.ListAssignmentsByUser(ctx, userID)
	if err != nil {
		return nil, repoErr("ListBorrowedBooks", err)
	}
	if len(assignments) == 0 {
		return nil, ErrResponseNoBorrowedBooks
	}

	borrowed := []BorrowedBook{}
	for _, a := range assignments {
		for _, item := range a.Books {
			b, err := s.repo.GetBookByID(ctx, item.BookID)
			if err != nil && !errors.Is(err, ErrResponseBookNotFound) {
				return nil, repoErr("ListBorrowedBooks", err)
			}
			borrowed = append(borrowed, BorrowedBook{
				Book:         b,
				BookID:       item.BookID,
				Quantity:     item.Quantity,
				DueDate:      a.DueDate,
				AssignmentID: a.ID,
			})
		}
	}

	return borrowed, nil
}

/* Deletes the assignment and puts the returned quantities back in stock. Quantities come from the caller and are not reconciled with the stored line items; books deleted in the meantime are skipped. */
func (s *Service) ReturnBooks(ctx context.Context, req ReturnRequest) error {
	if req.UserID == "" || req.AssignmentID == "" || !filledLineItems(req.Books) {
		return ErrResponseReturnEntryBlankFields
	}

	a, err := s.repo.GetAssignmentByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, ErrResponseAssignmentNotFound) {
			return ErrResponseAssignmentMismatch
		}
		return repoErr("ReturnBooks", err)
	}
	if a.UserID != req.UserID {
		return ErrResponseAssignmentMismatch
	}

	restock := make([]LineItem, 0, len(req.Books))
	for _, item := range req.Books {
		_, err := s.repo.GetBookByID(ctx, item.BookID)
		if err != nil {
			if errors.Is(err, ErrResponseBookNotFound) {
				s.logger.Warn("returned book no longer exists", "assignment_id", a.ID, "book_id", item.BookID)
				continue
			}
			return repoErr("ReturnBooks", err)
		}
		restock = append(restock, item)
	}

	// Deleting the assignment claims it. Only the caller whose delete succeeds
	// puts stock back, so concurrent or repeated returns restock once.
	if err := s.repo.DeleteAssignment(ctx, a.ID); err != nil {
		if errors.Is(err, ErrResponseAssignmentNotFound) {
			return ErrResponseAssignmentMismatch
		}
		return repoErr("ReturnBooks", err)
	}

	// The assignment is gone, so every increment is attempted even if the request is canceled.
	ctx = context.WithoutCancel(ctx)
	var restockErr error
	for _, item := range restock {
		_, err := s.AdjustStock(ctx, item.BookID, item.Quantity)
		if err != nil && !errors.Is(err, ErrResponseBookNotFound) {
			s.logger.Error("restocking returned book", "assignment_id", a.ID, "book_id", item.BookID, "quantity", item.Quantity, "error", err)
			if restockErr == nil {
				restockErr = err
			}
		}
	}
	if restockErr != nil {
		return restockErr
	}

	s.logger.Info("books returned", "assignment_id", a.ID, "user_id", a.UserID)
	return nil
}
