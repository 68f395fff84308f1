package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/library-service/cmd/api/library"
	"github.com/matryer/is"
)

type received struct {
	path string
	body string
}

/* Starts a fake ntfy server that records every message and answers with status. */
func newFakeNtfy(t *testing.T, status int) (*httptest.Server, chan received) {
	messages := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		messages <- received{path: r.URL.Path, body: string(body)}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, messages
}

func TestBookCreated(t *testing.T) {
	t.Run("notificates the creation of a new book without errors", func(t *testing.T) {
		is := is.New(t)
		server, messages := newFakeNtfy(t, http.StatusOK)
		ntfy := NewNtfy(true, server.URL+"/library", server.Client())

		err := ntfy.BookCreated(context.Background(), library.Book{Name: "book to test ntfy", Quantity: 35})
		is.NoErr(err)

		msg := <-messages
		is.Equal(msg.path, "/library_New_book_created")
		is.Equal(msg.body, "New book created:\nTitle: book to test ntfy\nQuantity: 35")
	})

	t.Run("expected notification failed error", func(t *testing.T) {
		is := is.New(t)
		server, _ := newFakeNtfy(t, http.StatusTooManyRequests)
		ntfy := NewNtfy(true, server.URL+"/library", server.Client())

		err := ntfy.BookCreated(context.Background(), library.Book{Name: "rate limited"})
		is.Equal(err, library.NewErrNotificationFailed(http.StatusTooManyRequests))
	})

	t.Run("expected context timeout error", func(t *testing.T) {
		is := is.New(t)
		blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer blocked.Close()
		ntfy := NewNtfy(true, blocked.URL+"/library", blocked.Client())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := ntfy.BookCreated(ctx, library.Book{Name: "book to test context timeout"})
		is.True(errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("disabled notifications send nothing", func(t *testing.T) {
		is := is.New(t)
		ntfy := NewNtfy(false, "http://127.0.0.1:1", http.DefaultClient)

		err := ntfy.BookCreated(context.Background(), library.Book{Name: "silent"})
		is.NoErr(err)
	})
}

func TestBooksAssigned(t *testing.T) {
	is := is.New(t)
	server, messages := newFakeNtfy(t, http.StatusOK)
	ntfy := NewNtfy(true, server.URL+"/library", server.Client())

	a := library.Assignment{
		UserID:  "user-1",
		Books:   []library.LineItem{{BookID: "a", Quantity: 2}, {BookID: "b", Quantity: 1}},
		DueDate: "2024-01-01",
	}
	err := ntfy.BooksAssigned(context.Background(), a)
	is.NoErr(err)

	msg := <-messages
	is.Equal(msg.path, "/library_Books_assigned")
	is.Equal(msg.body, "Books assigned:\nUser: user-1\nCopies: 3\nDue date: 2024-01-01")
}
