package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/library-service/cmd/api/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Handler struct {
	service        library.ServiceAPI
	requestTimeout time.Duration
	logger         *slog.Logger
}

func NewHandler(service library.ServiceAPI, requestTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		service:        service,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

/* Addresses a call to "/books/(expected id here)" according to the requested action.  */
func (h *Handler) bookById(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	switch method {
	case http.MethodGet:
		h.getBookById(w, r)
		return
	case http.MethodPut:
		h.updateBook(w, r)
		return
	case http.MethodDelete:
		h.deleteBook(w, r)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

/* Addresses a call to "/books" according to the requested action.  */
func (h *Handler) books(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	switch method {
	case http.MethodGet:
		h.listBooks(w, r)
		return
	case http.MethodPost:
		h.createBook(w, r)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

type BookEntry struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Language     string `json:"language"`
	Availability string `json:"availability"`
	Quantity     *int   `json:"quantity"`
}

type BookResponse struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Language     string `json:"language"`
	Availability string `json:"availability"`
	Quantity     int    `json:"quantity"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

/* Stores the entry as a new book. Availability and quantity may be left out. */
func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var bookEntry BookEntry
	if !h.decodeEntry(w, r, &bookEntry) {
		return
	}

	storedBook, err := h.service.CreateBook(r.Context(), library.CreateBookRequest{
		Name:         bookEntry.Name,
		Type:         bookEntry.Type,
		Language:     bookEntry.Language,
		Availability: bookEntry.Availability,
		Quantity:     bookEntry.Quantity,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusCreated, bookToResponse(storedBook))
}

/* Replaces every field of the asked book. A missing quantity is stored as zero. */
func (h *Handler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := isolateId(w, r, "/books/")
	if !ok {
		return
	}

	var bookEntry BookEntry
	if !h.decodeEntry(w, r, &bookEntry) {
		return
	}

	req := library.UpdateBookRequest{
		ID:           id,
		Name:         bookEntry.Name,
		Type:         bookEntry.Type,
		Language:     bookEntry.Language,
		Availability: bookEntry.Availability,
	}
	if bookEntry.Quantity != nil {
		req.Quantity = *bookEntry.Quantity
	}

	_, err := h.service.UpdateBook(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, MessageResponse{Message: "Book updated successfully"})
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := isolateId(w, r, "/books/")
	if !ok {
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		h.handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

/* Returns the book with that specific ID. */
func (h *Handler) getBookById(w http.ResponseWriter, r *http.Request) {
	id, ok := isolateId(w, r, "/books/")
	if !ok {
		return
	}

	returnedBook, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(returnedBook))
}

/* Returns a list of the stored books. */
func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	results := []BookResponse{}
	for _, b := range books {
		results = append(results, bookToResponse(b))
	}
	responseJSON(w, http.StatusOK, results)
}

/*Copy the fields of a book object to an http layer struct with json tags*/
func bookToResponse(b library.Book) BookResponse {
	return BookResponse{
		ID:           b.ID,
		Name:         b.Name,
		Type:         b.Type,
		Language:     b.Language,
		Availability: b.Availability,
		Quantity:     b.Quantity,
	}
}

/* Reads the JSON body into entry, answering 400 when it is not valid JSON. */
func (h *Handler) decodeEntry(w http.ResponseWriter, r *http.Request, entry any) bool {
	err := json.NewDecoder(r.Body).Decode(entry)
	if err != nil {
		h.logger.Debug("invalid json entry", "path", r.URL.Path, "error", err)
		errR := library.ErrResponse{
			Code:    library.ErrResponseEntryInvalidJSON.Code,
			Message: library.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return false
	}
	return true
}

/* Isolates the ID from the URL. Its format is checked by the store. */
func isolateId(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	justId, _ := strings.CutPrefix(r.URL.Path, prefix)
	if justId == "" || strings.Contains(justId, "/") {
		responseJSON(w, http.StatusBadRequest, library.ErrResponseIdInvalidFormat)
		return "", false
	}
	return justId, true
}

/* Translates a service error into its HTTP status and body. */
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		cause := context.DeadlineExceeded
		if errors.Is(err, context.Canceled) {
			cause = context.Canceled
		}
		h.logger.Warn("request ended by context", "error", err)
		errR := library.ErrResponse{
			Code:    library.ErrResponseRequestTimeout.Code,
			Message: library.ErrResponseRequestTimeout.Message + cause.Error(),
		}
		responseJSON(w, http.StatusGatewayTimeout, errR)
		return
	}

	var errR library.ErrResponse
	if !errors.As(err, &errR) || errR.Code == library.ErrResponseFromRespository.Code {
		h.logger.Error("internal failure", "error", err)
		responseJSON(w, http.StatusInternalServerError, library.ErrResponse{
			Code:    library.ErrResponseFromRespository.Code,
			Message: "internal failure",
		})
		return
	}

	switch errR.Code {
	case library.ErrResponseUserNotFound.Code,
		library.ErrResponseBookNotFound.Code,
		library.ErrResponseNoBorrowedBooks.Code,
		library.ErrResponseAssignmentNotFound.Code:
		responseJSON(w, http.StatusNotFound, errR)
	default:
		responseJSON(w, http.StatusBadRequest, errR)
	}
}

/*Writes a JSON response into a http.ResponseWriter. */
func responseJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("encoding json response", "error", err)
		return
	}
}
