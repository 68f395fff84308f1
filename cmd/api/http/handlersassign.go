package http

import (
	"net/http"

	"github.com/library-service/cmd/api/library"
)

type LineItemEntry struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

type AssignEntry struct {
	UserID  string          `json:"userId"`
	Books   []LineItemEntry `json:"books"`
	DueDate string          `json:"dueDate"`
}

type ReturnEntry struct {
	UserID       string          `json:"userId"`
	AssignmentID string          `json:"assignmentId"`
	Books        []LineItemEntry `json:"books"`
}

type AssignResponse struct {
	Message      string `json:"message"`
	AssignmentID string `json:"assignmentId"`
}

// BorrowedBookResponse carries the fields of the lent book next to the loan
// details. The book fields are left out when the book no longer exists.
type BorrowedBookResponse struct {
	*BookResponse
	BookID       string `json:"bookId"`
	Quantity     int    `json:"quantity"`
	DueDate      string `json:"dueDate"`
	AssignmentID string `json:"assignmentId"`
}

/* Lends books to a user, addressing a call to "/assign". */
func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var assignEntry AssignEntry
	if !h.decodeEntry(w, r, &assignEntry) {
		return
	}

	created, err := h.service.BorrowBooks(r.Context(), library.BorrowRequest{
		UserID:  assignEntry.UserID,
		Books:   entriesToLineItems(assignEntry.Books),
		DueDate: assignEntry.DueDate,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, AssignResponse{Message: "Books assigned successfully!", AssignmentID: created.ID})
}

/* Lists what a user holds, addressing a call to "/borrowed-books/(expected user id here)". */
func (h *Handler) borrowedBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := isolateId(w, r, "/borrowed-books/")
	if !ok {
		return
	}

	borrowed, err := h.service.ListBorrowedBooks(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	results := []BorrowedBookResponse{}
	for _, bb := range borrowed {
		entry := BorrowedBookResponse{
			BookID:       bb.BookID,
			Quantity:     bb.Quantity,
			DueDate:      bb.DueDate,
			AssignmentID: bb.AssignmentID,
		}
		if bb.Book.ID != "" {
			b := bookToResponse(bb.Book)
			entry.BookResponse = &b
		}
		results = append(results, entry)
	}
	responseJSON(w, http.StatusOK, results)
}

/* Takes books back, addressing a call to "/return-books". */
func (h *Handler) returnBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var returnEntry ReturnEntry
	if !h.decodeEntry(w, r, &returnEntry) {
		return
	}

	err := h.service.ReturnBooks(r.Context(), library.ReturnRequest{
		UserID:       returnEntry.UserID,
		AssignmentID: returnEntry.AssignmentID,
		Books:        entriesToLineItems(returnEntry.Books),
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, MessageResponse{Message: "Books returned successfully!"})
}

func entriesToLineItems(entries []LineItemEntry) []library.LineItem {
	items := make([]library.LineItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, library.LineItem(e))
	}
	return items
}
