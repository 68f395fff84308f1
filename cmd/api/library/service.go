package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

type ServiceAPI interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (User, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) (User, error)
	DeleteUser(ctx context.Context, id string) error

	ListBooks(ctx context.Context) ([]Book, error)
	GetBook(ctx context.Context, id string) (Book, error)
	CreateBook(ctx context.Context, req CreateBookRequest) (Book, error)
	UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error)
	DeleteBook(ctx context.Context, id string) error

	BorrowBooks(ctx context.Context, req BorrowRequest) (Assignment, error)
	ListBorrowedBooks(ctx context.Context, userID string) ([]BorrowedBook, error)
	ReturnBooks(ctx context.Context, req ReturnRequest) error

	DashboardStats(ctx context.Context) (Stats, error)
}

// Repository is the document store behind the service. Identifiers are
// assigned by the store on Create* and validated by it on every lookup.
type Repository interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)

	ListBooks(ctx context.Context) ([]Book, error)
	GetBookByID(ctx context.Context, id string) (Book, error)
	CreateBook(ctx context.Context, b Book) (Book, error)
	UpdateBook(ctx context.Context, b Book) (Book, error)
	DeleteBook(ctx context.Context, id string) error
	CountBooks(ctx context.Context) (int, error)
	// AdjustBookQuantity applies quantity += delta only if the result stays
	// non-negative. When it would not, the current book is returned together
	// with ErrResponseInsufficientStock.
	AdjustBookQuantity(ctx context.Context, id string, delta int) (Book, error)

	ListAssignments(ctx context.Context) ([]Assignment, error)
	ListAssignmentsByUser(ctx context.Context, userID string) ([]Assignment, error)
	GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
}

type Notifier interface {
	BookCreated(ctx context.Context, b Book) error
	BooksAssigned(ctx context.Context, a Assignment) error
}

type Service struct {
	repo                 Repository
	ntfy                 Notifier
	notificationsTimeout time.Duration
	logger               *slog.Logger
}

func NewService(repo Repository, ntfy Notifier, notificationsTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:                 repo,
		ntfy:                 ntfy,
		notificationsTimeout: notificationsTimeout,
		logger:               logger,
	}
}

/* Keeps known domain errors as they are, marks context errors as timeouts and hides anything else behind ErrResponseFromRespository. */
func repoErr(op string, err error) error {
	var errR ErrResponse
	if errors.As(err, &errR) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("timeout on call to %s: %w", op, err)
	}
	return ErrResponse{
		Code:    ErrResponseFromRespository.Code,
		Message: ErrResponseFromRespository.Message + err.Error(),
	}
}

/* Runs a notification in the background so the request never waits on it. */
func (s *Service) notify(event string, send func(ctx context.Context) error) {
	if s.ntfy == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notificationsTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("notification failed", "event", event, "error", err)
		}
	}()
}
