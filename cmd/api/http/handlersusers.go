package http

import (
	"net/http"

	"github.com/library-service/cmd/api/library"
)

/* Addresses a call to "/api/users" according to the requested action.  */
func (h *Handler) users(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	switch method {
	case http.MethodGet:
		h.listUsers(w, r)
		return
	case http.MethodPost:
		h.createUser(w, r)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

/* Addresses a call to "/api/users/(expected id here)" according to the requested action.  */
func (h *Handler) userById(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	switch method {
	case http.MethodGet:
		h.getUserById(w, r)
		return
	case http.MethodPut:
		h.updateUser(w, r)
		return
	case http.MethodDelete:
		h.deleteUser(w, r)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

type UserEntry struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type InsertResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

type DeleteResponse struct {
	Acknowledged bool `json:"acknowledged"`
	DeletedCount int  `json:"deletedCount"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	results := []UserResponse{}
	for _, u := range users {
		results = append(results, userToResponse(u))
	}
	responseJSON(w, http.StatusOK, results)
}

func (h *Handler) getUserById(w http.ResponseWriter, r *http.Request) {
	id, ok := isolateId(w, r, "/api/users/")
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, userToResponse(u))
}

/* Signs up a new user. All four fields are required. */
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var userEntry UserEntry
	if !h.decodeEntry(w, r, &userEntry) {
		return
	}

	created, err := h.service.CreateUser(r.Context(), library.CreateUserRequest(userEntry))
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, InsertResponse{Acknowledged: true, InsertedID: created.ID})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := isolateId(w, r, "/api/users/")
	if !ok {
		return
	}

	var userEntry UserEntry
	if !h.decodeEntry(w, r, &userEntry) {
		return
	}

	_, err := h.service.UpdateUser(r.Context(), library.UpdateUserRequest{
		ID:       id,
		Name:     userEntry.Name,
		Email:    userEntry.Email,
		Username: userEntry.Username,
		Password: userEntry.Password,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, MessageResponse{Message: "User updated successfully!"})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := isolateId(w, r, "/api/users/")
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.handleError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, DeleteResponse{Acknowledged: true, DeletedCount: 1})
}

func userToResponse(u library.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Username: u.Username,
		Password: u.Password,
	}
}
