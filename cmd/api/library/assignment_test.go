package library_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/library-service/cmd/api/library"
	librarymock "github.com/library-service/cmd/api/library/mocks"
	"github.com/matryer/is"
	gomock "go.uber.org/mock/gomock"
)

/* Stores a user and the given books, returning the user ID and the book IDs in order. */
func seed(t *testing.T, store *inmemory.InMemoryStore, books ...library.Book) (string, []string) {
	t.Helper()
	u, err := store.CreateUser(ctx, library.User{Name: "Ada", Email: "ada@example.com", Username: "ada", Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	ids := []string{}
	for _, b := range books {
		created, err := store.CreateBook(ctx, b)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, created.ID)
	}
	return u.ID, ids
}

func quantityOf(t *testing.T, store *inmemory.InMemoryStore, id string) int {
	t.Helper()
	b, err := store.GetBookByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return b.Quantity
}

/* Holds every GetAssignmentByID caller until all of them have read the assignment. */
type gatedAssignments struct {
	*inmemory.InMemoryStore
	read *sync.WaitGroup
}

func (g gatedAssignments) GetAssignmentByID(ctx context.Context, id string) (library.Assignment, error) {
	a, err := g.InMemoryStore.GetAssignmentByID(ctx, id)
	g.read.Done()
	g.read.Wait()
	return a, err
}

func TestBorrowBooks(t *testing.T) {
	t.Run("borrow, over-borrow and return of the same book", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store, library.Book{Name: "Dune", Availability: "Available", Quantity: 3})

		a, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID:  userID,
			Books:   []library.LineItem{{BookID: ids[0], Quantity: 2}},
			DueDate: "2024-01-01",
		})
		is.NoErr(err)
		is.True(a.ID != "")
		is.Equal(a.UserID, userID)
		is.Equal(a.Units(), 2)
		is.Equal(quantityOf(t, store, ids[0]), 1)

		_, err = mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: userID,
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 2}},
		})
		is.True(errors.Is(err, library.ErrResponseInsufficientStock))
		is.Equal(err.Error(), `Insufficient stock for "Dune". Only 1 available.`)
		is.Equal(quantityOf(t, store, ids[0]), 1)

		err = mS.ReturnBooks(ctx, library.ReturnRequest{
			UserID:       userID,
			AssignmentID: a.ID,
			Books:        []library.LineItem{{BookID: ids[0], Quantity: 2}},
		})
		is.NoErr(err)
		is.Equal(quantityOf(t, store, ids[0]), 3)

		_, err = mS.ListBorrowedBooks(ctx, userID)
		is.Equal(err, library.ErrResponseNoBorrowedBooks)
	})

	t.Run("every line item is checked before any stock changes", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store,
			library.Book{Name: "Dune", Availability: "Available", Quantity: 3},
			library.Book{Name: "Emma", Availability: "Available", Quantity: 1},
		)

		_, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: userID,
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 2}, {BookID: ids[1], Quantity: 5}},
		})
		is.Equal(err.Error(), `Insufficient stock for "Emma". Only 1 available.`)
		is.Equal(quantityOf(t, store, ids[0]), 3)
		is.Equal(quantityOf(t, store, ids[1]), 1)

		assignments, err := store.ListAssignments(ctx)
		is.NoErr(err)
		is.Equal(len(assignments), 0)
	})

	t.Run("an unknown user is rejected", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		_, ids := seed(t, store, library.Book{Name: "Dune", Quantity: 3})

		_, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: uuid.New().String(),
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 1}},
		})
		is.True(errors.Is(err, library.ErrResponseUserNotFound))
		is.Equal(quantityOf(t, store, ids[0]), 3)
	})

	t.Run("blank fields are rejected", func(t *testing.T) {
		is := is.New(t)
		mS, _ := newInMemoryService(t)

		_, err := mS.BorrowBooks(ctx, library.BorrowRequest{UserID: "someone"})
		is.Equal(err, library.ErrResponseAssignEntryBlankFields)

		_, err = mS.BorrowBooks(ctx, library.BorrowRequest{UserID: "someone", Books: []library.LineItem{{BookID: "b", Quantity: 0}}})
		is.Equal(err, library.ErrResponseAssignEntryBlankFields)
	})

	t.Run("a failed insert gives the stock back", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := librarymock.NewMockRepository(ctrl)
		mS := library.NewService(mockRepo, nil, notificationsTimeout, logger)

		b := library.Book{ID: "book-1", Name: "Dune", Quantity: 3}
		gomock.InOrder(
			mockRepo.EXPECT().GetUserByID(gomock.Any(), "user-1").Return(library.User{ID: "user-1"}, nil),
			mockRepo.EXPECT().GetBookByID(gomock.Any(), "book-1").Return(b, nil),
			mockRepo.EXPECT().AdjustBookQuantity(gomock.Any(), "book-1", -2).Return(library.Book{ID: "book-1", Name: "Dune", Quantity: 1}, nil),
			mockRepo.EXPECT().CreateAssignment(gomock.Any(), gomock.Any()).Return(library.Assignment{}, errors.New("write failed")),
			mockRepo.EXPECT().AdjustBookQuantity(gomock.Any(), "book-1", 2).Return(b, nil),
		)

		_, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: "user-1",
			Books:  []library.LineItem{{BookID: "book-1", Quantity: 2}},
		})
		is.True(errors.Is(err, library.ErrResponseFromRespository))
	})

	t.Run("a lost race on a later book undoes the earlier decrements", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := librarymock.NewMockRepository(ctrl)
		mS := library.NewService(mockRepo, nil, notificationsTimeout, logger)

		first := library.Book{ID: "book-1", Name: "Dune", Quantity: 3}
		second := library.Book{ID: "book-2", Name: "Emma", Quantity: 1}
		gomock.InOrder(
			mockRepo.EXPECT().GetUserByID(gomock.Any(), "user-1").Return(library.User{ID: "user-1"}, nil),
			mockRepo.EXPECT().GetBookByID(gomock.Any(), "book-1").Return(first, nil),
			mockRepo.EXPECT().GetBookByID(gomock.Any(), "book-2").Return(second, nil),
			mockRepo.EXPECT().AdjustBookQuantity(gomock.Any(), "book-1", -1).Return(library.Book{ID: "book-1", Name: "Dune", Quantity: 2}, nil),
			mockRepo.EXPECT().AdjustBookQuantity(gomock.Any(), "book-2", -1).
				Return(library.Book{ID: "book-2", Name: "Emma", Quantity: 0}, library.ErrResponseInsufficientStock),
			mockRepo.EXPECT().AdjustBookQuantity(gomock.Any(), "book-1", 1).Return(first, nil),
		)

		_, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: "user-1",
			Books:  []library.LineItem{{BookID: "book-1", Quantity: 1}, {BookID: "book-2", Quantity: 1}},
		})
		is.Equal(err.Error(), `Insufficient stock for "Emma". Only 0 available.`)
	})

	t.Run("concurrent borrows never overdraw the stock", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store, library.Book{Name: "Dune", Quantity: 5})

		var wg sync.WaitGroup
		var succeeded atomic.Int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := mS.BorrowBooks(ctx, library.BorrowRequest{
					UserID: userID,
					Books:  []library.LineItem{{BookID: ids[0], Quantity: 1}},
				})
				if err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		is.Equal(succeeded.Load(), int32(5))
		is.Equal(quantityOf(t, store, ids[0]), 0)
	})

	t.Run("notifies the new assignment", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)
		mockNtfy := librarymock.NewMockNotifier(ctrl)
		mS := library.NewService(store, mockNtfy, notificationsTimeout, logger)
		userID, ids := seed(t, store, library.Book{Name: "Dune", Quantity: 2})

		notified := make(chan library.Assignment, 1)
		mockNtfy.EXPECT().BooksAssigned(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, a library.Assignment) error {
			notified <- a
			return errors.New("ntfy unavailable")
		})

		a, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: userID,
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 2}},
		})
		is.NoErr(err)

		select {
		case sent := <-notified:
			is.Equal(sent.ID, a.ID)
		case <-time.After(time.Second):
			t.Fatal("notification was not sent")
		}
	})
}

func TestListBorrowedBooks(t *testing.T) {
	t.Run("lists one entry per line item with the current book", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store,
			library.Book{Name: "Dune", Quantity: 3},
			library.Book{Name: "Emma", Quantity: 2},
		)

		a, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID:  userID,
			Books:   []library.LineItem{{BookID: ids[0], Quantity: 1}, {BookID: ids[1], Quantity: 2}},
			DueDate: "2024-02-01",
		})
		is.NoErr(err)

		borrowed, err := mS.ListBorrowedBooks(ctx, userID)
		is.NoErr(err)
		is.Equal(len(borrowed), 2)
		is.Equal(borrowed[0].Book.Name, "Dune")
		is.Equal(borrowed[0].Book.Quantity, 2)
		is.Equal(borrowed[0].Quantity, 1)
		is.Equal(borrowed[1].BookID, ids[1])
		is.Equal(borrowed[1].Quantity, 2)
		is.Equal(borrowed[1].DueDate, "2024-02-01")
		is.Equal(borrowed[1].AssignmentID, a.ID)
	})

	t.Run("a deleted book is listed without its details", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store, library.Book{Name: "Dune", Quantity: 3})

		_, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: userID,
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 1}},
		})
		is.NoErr(err)
		is.NoErr(mS.DeleteBook(ctx, ids[0]))

		borrowed, err := mS.ListBorrowedBooks(ctx, userID)
		is.NoErr(err)
		is.Equal(len(borrowed), 1)
		is.Equal(borrowed[0].Book, library.Book{})
		is.Equal(borrowed[0].BookID, ids[0])
	})

	t.Run("a user without assignments gets a no borrowed books error", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, _ := seed(t, store)

		_, err := mS.ListBorrowedBooks(ctx, userID)
		is.Equal(err, library.ErrResponseNoBorrowedBooks)
	})
}

func TestReturnBooks(t *testing.T) {
	t.Run("an assignment of another user is a mismatch", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store, library.Book{Name: "Dune", Quantity: 3})

		a, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: userID,
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 1}},
		})
		is.NoErr(err)

		err = mS.ReturnBooks(ctx, library.ReturnRequest{
			UserID:       uuid.New().String(),
			AssignmentID: a.ID,
			Books:        []library.LineItem{{BookID: ids[0], Quantity: 1}},
		})
		is.Equal(err, library.ErrResponseAssignmentMismatch)
		is.Equal(quantityOf(t, store, ids[0]), 2)
	})

	t.Run("an unknown assignment is a mismatch", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store, library.Book{Name: "Dune", Quantity: 3})

		err := mS.ReturnBooks(ctx, library.ReturnRequest{
			UserID:       userID,
			AssignmentID: uuid.New().String(),
			Books:        []library.LineItem{{BookID: ids[0], Quantity: 1}},
		})
		is.Equal(err, library.ErrResponseAssignmentMismatch)
		is.Equal(quantityOf(t, store, ids[0]), 3)
	})

	t.Run("a book deleted during the loan is skipped", func(t *testing.T) {
		is := is.New(t)
		mS, store := newInMemoryService(t)
		userID, ids := seed(t, store,
			library.Book{Name: "Dune", Quantity: 3},
			library.Book{Name: "Emma", Quantity: 2},
		)

		a, err := mS.BorrowBooks(ctx, library.BorrowRequest{
			UserID: userID,
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 1}, {BookID: ids[1], Quantity: 1}},
		})
		is.NoErr(err)
		is.NoErr(mS.DeleteBook(ctx, ids[1]))

		err = mS.ReturnBooks(ctx, library.ReturnRequest{
			UserID:       userID,
			AssignmentID: a.ID,
			Books:        []library.LineItem{{BookID: ids[0], Quantity: 1}, {BookID: ids[1], Quantity: 1}},
		})
		is.NoErr(err)
		is.Equal(quantityOf(t, store, ids[0]), 3)

		_, err = store.GetAssignmentByID(ctx, a.ID)
		is.True(errors.Is(err, library.ErrResponseAssignmentNotFound))
	})

	t.Run("concurrent returns of one assignment restock once", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)
		userID, ids := seed(t, store, library.Book{Name: "Dune", Quantity: 3})

		a, err := library.NewService(store, nil, notificationsTimeout, logger).BorrowBooks(ctx, library.BorrowRequest{
			UserID: userID,
			Books:  []library.LineItem{{BookID: ids[0], Quantity: 2}},
		})
		is.NoErr(err)
		is.Equal(quantityOf(t, store, ids[0]), 1)

		var read sync.WaitGroup
		read.Add(2)
		mS := library.NewService(gatedAssignments{InMemoryStore: store, read: &read}, nil, notificationsTimeout, logger)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = mS.ReturnBooks(ctx, library.ReturnRequest{
					UserID:       userID,
					AssignmentID: a.ID,
					Books:        []library.LineItem{{BookID: ids[0], Quantity: 2}},
				})
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			is.Equal(err, library.ErrResponseAssignmentMismatch)
		}
		is.Equal(succeeded, 1)
		is.Equal(quantityOf(t, store, ids[0]), 3)
	})

	t.Run("the assignment is deleted before any stock is given back", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := librarymock.NewMockRepository(ctrl)
		mS := library.NewService(mockRepo, nil, notificationsTimeout, logger)

		gomock.InOrder(
			mockRepo.EXPECT().GetAssignmentByID(gomock.Any(), "assignment-1").Return(library.Assignment{ID: "assignment-1", UserID: "user-1"}, nil),
			mockRepo.EXPECT().GetBookByID(gomock.Any(), "book-1").Return(library.Book{ID: "book-1", Quantity: 1}, nil),
			mockRepo.EXPECT().DeleteAssignment(gomock.Any(), "assignment-1").Return(nil),
			mockRepo.EXPECT().AdjustBookQuantity(gomock.Any(), "book-1", 2).Return(library.Book{ID: "book-1", Quantity: 3}, nil),
		)

		err := mS.ReturnBooks(ctx, library.ReturnRequest{
			UserID:       "user-1",
			AssignmentID: "assignment-1",
			Books:        []library.LineItem{{BookID: "book-1", Quantity: 2}},
		})
		is.NoErr(err)
	})

	t.Run("an assignment already returned gives no stock back", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := librarymock.NewMockRepository(ctrl)
		mS := library.NewService(mockRepo, nil, notificationsTimeout, logger)

		gomock.InOrder(
			mockRepo.EXPECT().GetAssignmentByID(gomock.Any(), "assignment-1").Return(library.Assignment{ID: "assignment-1", UserID: "user-1"}, nil),
			mockRepo.EXPECT().GetBookByID(gomock.Any(), "book-1").Return(library.Book{ID: "book-1", Quantity: 1}, nil),
			mockRepo.EXPECT().DeleteAssignment(gomock.Any(), "assignment-1").
				Return(fmt.Errorf("deleting assignment from db: %w", library.ErrResponseAssignmentNotFound)),
		)

		err := mS.ReturnBooks(ctx, library.ReturnRequest{
			UserID:       "user-1",
			AssignmentID: "assignment-1",
			Books:        []library.LineItem{{BookID: "book-1", Quantity: 2}},
		})
		is.Equal(err, library.ErrResponseAssignmentMismatch)
	})

	t.Run("blank fields are rejected", func(t *testing.T) {
		is := is.New(t)
		mS, _ := newInMemoryService(t)

		err := mS.ReturnBooks(ctx, library.ReturnRequest{UserID: "someone", Books: []library.LineItem{{BookID: "b", Quantity: 1}}})
		is.Equal(err, library.ErrResponseReturnEntryBlankFields)
	})
}
