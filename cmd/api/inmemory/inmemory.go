package inmemory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/library"
)

const (
	tableUser       = "user"
	tableBook       = "book"
	tableAssignment = "assignment"
)

// InMemoryStore keeps users, books and assignments in go-memdb tables.
// Every method runs in its own transaction; memdb serializes write
// transactions, which makes AdjustBookQuantity atomic.
type InMemoryStore struct {
	db *memdb.MemDB
}

func NewInMemoryStore() (*InMemoryStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableUser: {
				Name: tableUser,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			tableBook: {
				Name: tableBook,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			tableAssignment: {
				Name: tableAssignment,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"user_id": {
						Name:    "user_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
				},
			},
		},
	}

	if errV := schema.Validate(); errV != nil {
		slog.Error("schema validating error", "error", errV)
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db}, nil
}

/* Checks that id has the UUID format this store hands out. */
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return library.ErrResponseIdInvalidFormat
	}
	return nil
}

func copyAssignment(a library.Assignment) library.Assignment {
	a.Books = append([]library.LineItem(nil), a.Books...)
	return a
}

// -- Users --

func (store *InMemoryStore) ListUsers(ctx context.Context) ([]library.User, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableUser, "id")
	if err != nil {
		return nil, fmt.Errorf("listing users from db: %w", err)
	}

	users := []library.User{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		users = append(users, obj.(library.User))
	}
	return users, nil
}

func (store *InMemoryStore) GetUserByID(ctx context.Context, id string) (library.User, error) {
	if err := validID(id); err != nil {
		return library.User{}, err
	}
	txn := store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableUser, "id", id)
	if err != nil {
		return library.User{}, fmt.Errorf("searching user by ID: %w", err)
	}
	if raw == nil {
		return library.User{}, fmt.Errorf("searching user by ID: %w", library.ErrResponseUserNotFound)
	}
	return raw.(library.User), nil
}

func (store *InMemoryStore) CreateUser(ctx context.Context, u library.User) (library.User, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	u.ID = uuid.New().String()
	if err := txn.Insert(tableUser, u); err != nil {
		return library.User{}, fmt.Errorf("storing user on db: %w", err)
	}

	txn.Commit()
	return u, nil
}

func (store *InMemoryStore) UpdateUser(ctx context.Context, u library.User) (library.User, error) {
	if err := validID(u.ID); err != nil {
		return library.User{}, err
	}
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableUser, "id", u.ID)
	if err != nil {
		return library.User{}, fmt.Errorf("updating user on db: %w", err)
	}
	if raw == nil {
		return library.User{}, fmt.Errorf("updating user on db: %w", library.ErrResponseUserNotFound)
	}

	if err := txn.Insert(tableUser, u); err != nil {
		return library.User{}, fmt.Errorf("updating user on db: %w", err)
	}

	txn.Commit()
	return u, nil
}

func (store *InMemoryStore) DeleteUser(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	txn := store.db.Txn(true)
	defer txn.Abort()

	count, err := txn.DeleteAll(tableUser, "id", id)
	if err != nil {
		return fmt.Errorf("deleting user from db: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("deleting user from db: %w", library.ErrResponseUserNotFound)
	}

	txn.Commit()
	return nil
}

func (store *InMemoryStore) CountUsers(ctx context.Context) (int, error) {
	return store.count(tableUser)
}

// -- Books --

func (store *InMemoryStore) ListBooks(ctx context.Context) ([]library.Book, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableBook, "id")
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}

	books := []library.Book{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		books = append(books, obj.(library.Book))
	}
	return books, nil
}

func (store *InMemoryStore) GetBookByID(ctx context.Context, id string) (library.Book, error) {
	if err := validID(id); err != nil {
		return library.Book{}, err
	}
	txn := store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableBook, "id", id)
	if err != nil {
		return library.Book{}, fmt.Errorf("searching book by ID: %w", err)
	}
	if raw == nil {
		return library.Book{}, fmt.Errorf("searching book by ID: %w", library.ErrResponseBookNotFound)
	}
	return raw.(library.Book), nil
}

func (store *InMemoryStore) CreateBook(ctx context.Context, b library.Book) (library.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	b.ID = uuid.New().String()
	if err := txn.Insert(tableBook, b); err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	txn.Commit()
	return b, nil
}

func (store *InMemoryStore) UpdateBook(ctx context.Context, b library.Book) (library.Book, error) {
	if err := validID(b.ID); err != nil {
		return library.Book{}, err
	}
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableBook, "id", b.ID)
	if err != nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", err)
	}
	if raw == nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", library.ErrResponseBookNotFound)
	}

	if err := txn.Insert(tableBook, b); err != nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", err)
	}

	txn.Commit()
	return b, nil
}

func (store *InMemoryStore) DeleteBook(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	txn := store.db.Txn(true)
	defer txn.Abort()

	count, err := txn.DeleteAll(tableBook, "id", id)
	if err != nil {
		return fmt.Errorf("deleting book from db: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("deleting book from db: %w", library.ErrResponseBookNotFound)
	}

	txn.Commit()
	return nil
}

func (store *InMemoryStore) CountBooks(ctx context.Context) (int, error) {
	return store.count(tableBook)
}

func (store *InMemoryStore) AdjustBookQuantity(ctx context.Context, id string, delta int) (library.Book, error) {
	if err := validID(id); err != nil {
		return library.Book{}, err
	}
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableBook, "id", id)
	if err != nil {
		return library.Book{}, fmt.Errorf("adjusting book quantity on db: %w", err)
	}
	if raw == nil {
		return library.Book{}, fmt.Errorf("adjusting book quantity on db: %w", library.ErrResponseBookNotFound)
	}

	b := raw.(library.Book)
	if b.Quantity+delta < 0 {
		return b, fmt.Errorf("adjusting book quantity on db: %w", library.ErrResponseInsufficientStock)
	}
	b.Quantity += delta

	if err := txn.Insert(tableBook, b); err != nil {
		return library.Book{}, fmt.Errorf("adjusting book quantity on db: %w", err)
	}

	txn.Commit()
	return b, nil
}

// -- Assignments --

func (store *InMemoryStore) ListAssignments(ctx context.Context) ([]library.Assignment, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableAssignment, "id")
	if err != nil {
		return nil, fmt.Errorf("listing assignments from db: %w", err)
	}

	assignments := []library.Assignment{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		assignments = append(assignments, copyAssignment(obj.(library.Assignment)))
	}
	return assignments, nil
}

func (store *InMemoryStore) ListAssignmentsByUser(ctx context.Context, userID string) ([]library.Assignment, error) {
	if err := validID(userID); err != nil {
		return nil, err
	}
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableAssignment, "user_id", userID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments of user from db: %w", err)
	}

	assignments := []library.Assignment{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		assignments = append(assignments, copyAssignment(obj.(library.Assignment)))
	}
	return assignments, nil
}

func (store *InMemoryStore) GetAssignmentByID(ctx context.Context, id string) (library.Assignment, error) {
	if err := validID(id); err != nil {
		return library.Assignment{}, err
	}
	txn := store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableAssignment, "id", id)
	if err != nil {
		return library.Assignment{}, fmt.Errorf("searching assignment by ID: %w", err)
	}
	if raw == nil {
		return library.Assignment{}, fmt.Errorf("searching assignment by ID: %w", library.ErrResponseAssignmentNotFound)
	}
	return copyAssignment(raw.(library.Assignment)), nil
}

func (store *InMemoryStore) CreateAssignment(ctx context.Context, a library.Assignment) (library.Assignment, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	a = copyAssignment(a)
	a.ID = uuid.New().String()
	if err := txn.Insert(tableAssignment, a); err != nil {
		return library.Assignment{}, fmt.Errorf("storing assignment on db: %w", err)
	}

	txn.Commit()
	return copyAssignment(a), nil
}

func (store *InMemoryStore) DeleteAssignment(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	txn := store.db.Txn(true)
	defer txn.Abort()

	count, err := txn.DeleteAll(tableAssignment, "id", id)
	if err != nil {
		return fmt.Errorf("deleting assignment from db: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("deleting assignment from db: %w", library.ErrResponseAssignmentNotFound)
	}

	txn.Commit()
	return nil
}

func (store *InMemoryStore) count(table string) (int, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(table, "id")
	if err != nil {
		return 0, fmt.Errorf("counting %s rows from db: %w", table, err)
	}

	count := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		count++
	}
	return count, nil
}
