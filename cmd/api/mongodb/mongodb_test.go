package mongodb_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/library-service/cmd/api/library"
	"github.com/library-service/cmd/api/mongodb"
	"github.com/matryer/is"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var client *mongo.Client
var ctx context.Context = context.Background()

// TestMain connects to the server named by MONGODB_URI. Without it the
// tests of this package are skipped.
func TestMain(m *testing.M) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		log.Println("MONGODB_URI not set, skipping mongodb tests")
		os.Exit(0)
	}

	var err error
	client, err = mongodb.Connect(ctx, uri)
	if err != nil {
		log.Fatalln(err)
	}

	code := m.Run()
	_ = client.Disconnect(ctx)
	os.Exit(code)
}

/* Gives each test its own database and drops it afterwards. */
func newStore(t *testing.T) *mongodb.Store {
	dbName := fmt.Sprintf("library_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		if err := client.Database(dbName).Drop(ctx); err != nil {
			t.Log(err)
		}
	})
	return mongodb.NewStore(client, dbName)
}

func TestUsers(t *testing.T) {
	store := newStore(t)

	t.Run("creates, updates and deletes a user without errors", func(t *testing.T) {
		is := is.New(t)

		u := library.User{Name: "Ada", Email: "ada@example.com", Username: "ada", Password: "secret"}
		created, err := store.CreateUser(ctx, u)
		is.NoErr(err)
		is.True(created.ID != "")

		created.Email = "ada@lovelace.org"
		_, err = store.UpdateUser(ctx, created)
		is.NoErr(err)

		fetched, err := store.GetUserByID(ctx, created.ID)
		is.NoErr(err)
		is.Equal(fetched, created)

		err = store.DeleteUser(ctx, created.ID)
		is.NoErr(err)

		_, err = store.GetUserByID(ctx, created.ID)
		is.True(errors.Is(err, library.ErrResponseUserNotFound))
	})

	t.Run("malformed identifiers are rejected", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetUserByID(ctx, "123")
		is.True(errors.Is(err, library.ErrResponseIdInvalidFormat))
	})
}

func TestAdjustBookQuantity(t *testing.T) {
	store := newStore(t)

	b, err := store.CreateBook(ctx, library.Book{Name: "Dune", Availability: "Available", Quantity: 2})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("decrements only while stock lasts", func(t *testing.T) {
		is := is.New(t)

		adjusted, err := store.AdjustBookQuantity(ctx, b.ID, -2)
		is.NoErr(err)
		is.Equal(adjusted.Quantity, 0)

		current, err := store.AdjustBookQuantity(ctx, b.ID, -1)
		is.True(errors.Is(err, library.ErrResponseInsufficientStock))
		is.Equal(current.Quantity, 0)

		adjusted, err = store.AdjustBookQuantity(ctx, b.ID, 2)
		is.NoErr(err)
		is.Equal(adjusted.Quantity, 2)
	})

	t.Run("adjusting a non existing book should return a not found error", func(t *testing.T) {
		is := is.New(t)

		_, err := store.AdjustBookQuantity(ctx, primitive.NewObjectID().Hex(), -1)
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestAssignments(t *testing.T) {
	store := newStore(t)
	userID := primitive.NewObjectID().Hex()

	t.Run("creates, lists and deletes assignments without errors", func(t *testing.T) {
		is := is.New(t)

		a := library.Assignment{
			UserID:     userID,
			Books:      []library.LineItem{{BookID: primitive.NewObjectID().Hex(), Quantity: 2}},
			DueDate:    "2024-01-01",
			AssignedAt: time.Now().UTC().Round(time.Millisecond),
		}
		created, err := store.CreateAssignment(ctx, a)
		is.NoErr(err)

		byUser, err := store.ListAssignmentsByUser(ctx, userID)
		is.NoErr(err)
		is.Equal(len(byUser), 1)
		is.Equal(byUser[0].Books, a.Books)
		is.Equal(byUser[0].AssignedAt.Equal(a.AssignedAt), true)

		err = store.DeleteAssignment(ctx, created.ID)
		is.NoErr(err)

		_, err = store.GetAssignmentByID(ctx, created.ID)
		is.True(errors.Is(err, library.ErrResponseAssignmentNotFound))
	})
}
