package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"

	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/lib/pq"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	exc *Executor
}

type Executor struct {
	DBTX
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		exc: NewExc(db),
	}
}

func NewExc(dbtx DBTX) *Executor {
	return &Executor{DBTX: dbtx}
}

/* Runs fn inside a transaction, committing when it returns nil and rolling back otherwise. */
func (store *Store) inTx(ctx context.Context, fn func(exc *Executor) error) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(NewExc(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rolling back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

/* Connects to the database trought a connection string and returns a pointer to a valid DB object (*sql.DB). */
func ConnectDb(connStr string) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, openning: %w", err)
	}

	err = sqlDB.Ping()
	if err != nil {
		return nil, fmt.Errorf("connecting to db, pingging: %w", err)
	}

	slog.Info("successfully connected to postgres")
	return sqlDB, nil
}

func MigrationUp(store *Store, path string) error {
	driver, err := postgres.WithInstance(store.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	err = m.Up()
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return library.ErrResponseIdInvalidFormat
	}
	return nil
}

// -- Users --

func (store *Store) ListUsers(ctx context.Context) ([]library.User, error) {
	sqlStatement := `SELECT id, name, email, username, password FROM users ORDER BY name;`
	rows, err := store.exc.QueryContext(ctx, sqlStatement)
	if err != nil {
		return nil, fmt.Errorf("listing users from db: %w", err)
	}
	defer rows.Close()

	users := []library.User{}
	var u library.User
	for rows.Next() {
		err = rows.Scan(&u.ID, &u.Name, &u.Email, &u.Username, &u.Password)
		if err != nil {
			return nil, fmt.Errorf("listing users from db: %w", err)
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users from db: %w", err)
	}
	return users, nil
}

func (store *Store) GetUserByID(ctx context.Context, id string) (library.User, error) {
	if err := validID(id); err != nil {
		return library.User{}, err
	}

	sqlStatement := `SELECT id, name, email, username, password FROM users WHERE id=$1;`
	foundRow := store.exc.QueryRowContext(ctx, sqlStatement, id)
	var u library.User
	err := foundRow.Scan(&u.ID, &u.Name, &u.Email, &u.Username, &u.Password)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return library.User{}, fmt.Errorf("searching user by ID: %w", library.ErrResponseUserNotFound)
		default:
			return library.User{}, fmt.Errorf("searching user by ID: %w", err)
		}
	}
	return u, nil
}

func (store *Store) CreateUser(ctx context.Context, u library.User) (library.User, error) {
	u.ID = uuid.New().String()
	sqlStatement := `
	INSERT INTO users (id, name, email, username, password)
	VALUES ($1, $2, $3, $4, $5)`
	_, err := store.exc.ExecContext(ctx, sqlStatement, u.ID, u.Name, u.Email, u.Username, u.Password)
	if err != nil {
		return library.User{}, fmt.Errorf("storing user on db: %w", err)
	}
	return u, nil
}

func (store *Store) UpdateUser(ctx context.Context, u library.User) (library.User, error) {
	if err := validID(u.ID); err != nil {
		return library.User{}, err
	}

	sqlStatement := `
	UPDATE users
	SET name = $2, email = $3, username = $4, password = $5
	WHERE id = $1`
	result, err := store.exc.ExecContext(ctx, sqlStatement, u.ID, u.Name, u.Email, u.Username, u.Password)
	if err != nil {
		return library.User{}, fmt.Errorf("updating user on db: %w", err)
	}
	if err := expectOneRow(result, library.ErrResponseUserNotFound); err != nil {
		return library.User{}, fmt.Errorf("updating user on db: %w", err)
	}
	return u, nil
}

func (store *Store) DeleteUser(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}

	result, err := store.exc.ExecContext(ctx, `DELETE FROM users WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("deleting user from db: %w", err)
	}
	if err := expectOneRow(result, library.ErrResponseUserNotFound); err != nil {
		return fmt.Errorf("deleting user from db: %w", err)
	}
	return nil
}

func (store *Store) CountUsers(ctx context.Context) (int, error) {
	return store.count(ctx, "users")
}

// -- Books --

const bookColumns = `id, name, type, language, availability, quantity`

func scanBook(row interface{ Scan(dest ...any) error }) (library.Book, error) {
	var b library.Book
	err := row.Scan(&b.ID, &b.Name, &b.Type, &b.Language, &b.Availability, &b.Quantity)
	return b, err
}

func (store *Store) ListBooks(ctx context.Context) ([]library.Book, error) {
	sqlStatement := `SELECT ` + bookColumns + ` FROM books ORDER BY name;`
	rows, err := store.exc.QueryContext(ctx, sqlStatement)
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	defer rows.Close()

	books := []library.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("listing books from db: %w", err)
		}
		books = append(books, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	return books, nil
}

func (store *Store) GetBookByID(ctx context.Context, id string) (library.Book, error) {
	if err := validID(id); err != nil {
		return library.Book{}, err
	}

	sqlStatement := `SELECT ` + bookColumns + ` FROM books WHERE id=$1;`
	b, err := scanBook(store.exc.QueryRowContext(ctx, sqlStatement, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return library.Book{}, fmt.Errorf("searching book by ID: %w", library.ErrResponseBookNotFound)
		default:
			return library.Book{}, fmt.Errorf("searching book by ID: %w", err)
		}
	}
	return b, nil
}

func (store *Store) CreateBook(ctx context.Context, b library.Book) (library.Book, error) {
	sqlStatement := `
	INSERT INTO books (` + bookColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + bookColumns
	created, err := scanBook(store.exc.QueryRowContext(ctx, sqlStatement, uuid.New(), b.Name, b.Type, b.Language, b.Availability, b.Quantity))
	if err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", err)
	}
	return created, nil
}

func (store *Store) UpdateBook(ctx context.Context, b library.Book) (library.Book, error) {
	if err := validID(b.ID); err != nil {
		return library.Book{}, err
	}

	sqlStatement := `
	UPDATE books
	SET name = $2, type = $3, language = $4, availability = $5, quantity = $6
	WHERE id = $1
	RETURNING ` + bookColumns
	updated, err := scanBook(store.exc.QueryRowContext(ctx, sqlStatement, b.ID, b.Name, b.Type, b.Language, b.Availability, b.Quantity))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return library.Book{}, fmt.Errorf("updating book on db: %w", library.ErrResponseBookNotFound)
		default:
			return library.Book{}, fmt.Errorf("updating book on db: %w", err)
		}
	}
	return updated, nil
}

func (store *Store) DeleteBook(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}

	result, err := store.exc.ExecContext(ctx, `DELETE FROM books WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("deleting book from db: %w", err)
	}
	if err := expectOneRow(result, library.ErrResponseBookNotFound); err != nil {
		return fmt.Errorf("deleting book from db: %w", err)
	}
	return nil
}

func (store *Store) CountBooks(ctx context.Context) (int, error) {
	return store.count(ctx, "books")
}

/* Adds delta to the quantity in one conditional UPDATE, which only matches while the result stays non-negative. */
func (store *Store) AdjustBookQuantity(ctx context.Context, id string, delta int) (library.Book, error) {
	if err := validID(id); err != nil {
		return library.Book{}, err
	}

	sqlStatement := `
	UPDATE books
	SET quantity = quantity + $2
	WHERE id = $1 AND quantity + $2 >= 0
	RETURNING ` + bookColumns
	adjusted, err := scanBook(store.exc.QueryRowContext(ctx, sqlStatement, id, delta))
	if err == nil {
		return adjusted, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return library.Book{}, fmt.Errorf("adjusting book quantity on db: %w", err)
	}

	current, err := store.GetBookByID(ctx, id)
	if err != nil {
		return library.Book{}, fmt.Errorf("adjusting book quantity on db: %w", err)
	}
	return current, fmt.Errorf("adjusting book quantity on db: %w", library.ErrResponseInsufficientStock)
}

// -- Assignments --

/* Reads assignments joined with their line items, keeping assignment and item order. */
func (store *Store) listAssignments(ctx context.Context, where string, args ...any) ([]library.Assignment, error) {
	sqlStatement := `SELECT a.id, a.user_id, a.due_date, a.assigned_at, i.book_id, i.quantity
	FROM assignments a
	LEFT JOIN assignment_items i ON i.assignment_id = a.id
	` + where + `
	ORDER BY a.assigned_at, a.id, i.position;`

	rows, err := store.exc.QueryContext(ctx, sqlStatement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := []library.Assignment{}
	for rows.Next() {
		var a library.Assignment
		var bookID sql.NullString
		var quantity sql.NullInt64
		err = rows.Scan(&a.ID, &a.UserID, &a.DueDate, &a.AssignedAt, &bookID, &quantity)
		if err != nil {
			return nil, err
		}

		last := len(assignments) - 1
		if last < 0 || assignments[last].ID != a.ID {
			a.Books = []library.LineItem{}
			assignments = append(assignments, a)
			last++
		}
		if bookID.Valid {
			assignments[last].Books = append(assignments[last].Books, library.LineItem{BookID: bookID.String, Quantity: int(quantity.Int64)})
		}
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (store *Store) ListAssignments(ctx context.Context) ([]library.Assignment, error) {
	assignments, err := store.listAssignments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing assignments from db: %w", err)
	}
	return assignments, nil
}

func (store *Store) ListAssignmentsByUser(ctx context.Context, userID string) ([]library.Assignment, error) {
	if err := validID(userID); err != nil {
		return nil, err
	}

	assignments, err := store.listAssignments(ctx, "WHERE a.user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments of user from db: %w", err)
	}
	return assignments, nil
}

func (store *Store) GetAssignmentByID(ctx context.Context, id string) (library.Assignment, error) {
	if err := validID(id); err != nil {
		return library.Assignment{}, err
	}

	assignments, err := store.listAssignments(ctx, "WHERE a.id = $1", id)
	if err != nil {
		return library.Assignment{}, fmt.Errorf("searching assignment by ID: %w", err)
	}
	if len(assignments) == 0 {
		return library.Assignment{}, fmt.Errorf("searching assignment by ID: %w", library.ErrResponseAssignmentNotFound)
	}
	return assignments[0], nil
}

/* Inserts the assignment row and its line items in one transaction. */
func (store *Store) CreateAssignment(ctx context.Context, a library.Assignment) (library.Assignment, error) {
	if err := validID(a.UserID); err != nil {
		return library.Assignment{}, err
	}
	for _, item := range a.Books {
		if err := validID(item.BookID); err != nil {
			return library.Assignment{}, err
		}
	}

	a.ID = uuid.New().String()
	err := store.inTx(ctx, func(exc *Executor) error {
		sqlStatement := `
		INSERT INTO assignments (id, user_id, due_date, assigned_at)
		VALUES ($1, $2, $3, $4)`
		if _, err := exc.ExecContext(ctx, sqlStatement, a.ID, a.UserID, a.DueDate, a.AssignedAt); err != nil {
			return err
		}

		sqlStatement = `
		INSERT INTO assignment_items (assignment_id, position, book_id, quantity)
		VALUES ($1, $2, $3, $4)`
		for position, item := range a.Books {
			if _, err := exc.ExecContext(ctx, sqlStatement, a.ID, position, item.BookID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return library.Assignment{}, fmt.Errorf("storing assignment on db: %w", err)
	}
	return a, nil
}

func (store *Store) DeleteAssignment(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}

	result, err := store.exc.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("deleting assignment from db: %w", err)
	}
	if err := expectOneRow(result, library.ErrResponseAssignmentNotFound); err != nil {
		return fmt.Errorf("deleting assignment from db: %w", err)
	}
	return nil
}

func (store *Store) count(ctx context.Context, table string) (int, error) {
	row := store.exc.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+`;`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s from db: %w", table, err)
	}
	return count, nil
}

/* Turns "no row affected" into notFound. */
func expectOneRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
