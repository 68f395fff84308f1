package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/library-service/cmd/api/library"
)

const (
	topicBookCreated   = "_New_book_created"
	topicBooksAssigned = "_Books_assigned"
)

// Ntfy publishes plain text messages to topics under baseURL, the way
// ntfy.sh expects them. A disabled Ntfy accepts every call and sends nothing.
type Ntfy struct {
	baseURL string
	enabled bool
	client  *http.Client
}

func NewNtfy(enableNotifications bool, notificationsBaseURL string, client *http.Client) *Ntfy {
	return &Ntfy{
		baseURL: notificationsBaseURL,
		enabled: enableNotifications,
		client:  client,
	}
}

func (ntf *Ntfy) BookCreated(ctx context.Context, b library.Book) error {
	message := fmt.Sprintf("New book created:\nTitle: %s\nQuantity: %v", b.Name, b.Quantity)
	return ntf.publish(ctx, topicBookCreated, message)
}

func (ntf *Ntfy) BooksAssigned(ctx context.Context, a library.Assignment) error {
	message := fmt.Sprintf("Books assigned:\nUser: %s\nCopies: %v\nDue date: %s", a.UserID, a.Units(), a.DueDate)
	return ntf.publish(ctx, topicBooksAssigned, message)
}

func (ntf *Ntfy) publish(ctx context.Context, topic, message string) error {
	if !ntf.enabled {
		return nil
	}

	url := ntf.baseURL + topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", url, err)
	}
	req.Header.Set("content-type", "text/plain")

	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return library.NewErrNotificationFailed(resp.StatusCode)
	}
	return nil
}
