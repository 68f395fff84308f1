package http

import (
	"net/http"
)

type StatsResponse struct {
	UserCount     int `json:"userCount"`
	BookCount     int `json:"bookCount"`
	BorrowedBooks int `json:"borrowedBooks"`
	ReturnedBooks int `json:"returnedBooks"`
}

/* Summarizes the library, addressing a call to "/dashboard/stats". returnedBooks counts the copies in stock. */
func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, StatsResponse{
		UserCount:     stats.UserCount,
		BookCount:     stats.BookCount,
		BorrowedBooks: stats.BorrowedBooks,
		ReturnedBooks: stats.InStockBooks,
	})
}
