package library

import (
	"fmt"
)

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

// Is matches on Code, so a sentinel matches a copy carrying a detailed message.
func (e ErrResponse) Is(target error) bool {
	t, ok := target.(ErrResponse)
	return ok && t.Code == e.Code
}

var ErrResponseUserEntryBlankFields = ErrResponse{100, "Please provide all necessary fields."}
var ErrResponseUserNotFound = ErrResponse{101, "User not found."}
var ErrResponseEntryInvalidJSON = ErrResponse{102, "invalid json request."}
var ErrResponseIdInvalidFormat = ErrResponse{103, "the identifier is not in a valid format."}
var ErrResponseBookNotFound = ErrResponse{104, "Book not found"}
var ErrResponseBookEntryInvalidQuantity = ErrResponse{105, "field quantity must not be negative."}
var ErrResponseAssignEntryBlankFields = ErrResponse{106, "fields userId and books - each with a bookId and a positive quantity - must be filled correctly."}
var ErrResponseReturnEntryBlankFields = ErrResponse{107, "fields userId, assignmentId and books - each with a bookId and a positive quantity - must be filled correctly."}
var ErrResponseInsufficientStock = ErrResponse{108, "insufficient stock"}
var ErrResponseRequestTimeout = ErrResponse{109, "error from context:"}
var ErrResponseFromRespository = ErrResponse{110, "error from repository:"}
var ErrResponseAssignmentMismatch = ErrResponse{111, "Assignment not found or user mismatch."}
var ErrResponseNoBorrowedBooks = ErrResponse{112, "No borrowed books found for this user."}
var ErrResponseAssignmentNotFound = ErrResponse{113, "assignment not found"}

/* Builds the InsufficientStock error for a book, naming it and its available quantity. */
func NewErrInsufficientStock(b Book) ErrResponse {
	return ErrResponse{
		Code:    ErrResponseInsufficientStock.Code,
		Message: fmt.Sprintf("Insufficient stock for %q. Only %d available.", b.Name, b.Quantity),
	}
}

type ErrNotificationFailed struct {
	statusCode int
}

func (e ErrNotificationFailed) Error() string {
	return fmt.Sprintf("ntfy wrong response - want: 200 OK, got: %d", e.statusCode)
}

func NewErrNotificationFailed(statusCode int) ErrNotificationFailed {
	return ErrNotificationFailed{statusCode: statusCode}
}
