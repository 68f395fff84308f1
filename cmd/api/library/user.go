package library

import (
	"context"
)

type User struct {
	ID       string
	Name     string
	Email    string
	Username string
	Password string
}

/* Verifies that the four identity fields are filled. */
func FilledUserFields(u User) error {
	if u.Name == "" || u.Email == "" || u.Username == "" || u.Password == "" {
		return ErrResponseUserEntryBlankFields
	}
	return nil
}

type CreateUserRequest struct {
	Name     string
	Email    string
	Username string
	Password string
}

type UpdateUserRequest struct {
	ID       string
	Name     string
	Email    string
	Username string
	Password string
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, repoErr("ListUsers", err)
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, repoErr("GetUser", err)
	}
	return u, nil
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	newUser := User{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}
	if err := FilledUserFields(newUser); err != nil {
		return User{}, err
	}

	created, err := s.repo.CreateUser(ctx, newUser)
	if err != nil {
		return User{}, repoErr("CreateUser", err)
	}
	return created, nil
}

/* Replaces every identity field of the stored user. The identifier never changes. */
func (s *Service) UpdateUser(ctx context.Context, req UpdateUserRequest) (User, error) {
	u := User{
		ID:       req.ID,
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}
	if err := FilledUserFields(u); err != nil {
		return User{}, err
	}

	updated, err := s.repo.UpdateUser(ctx, u)
	if err != nil {
		return User{}, repoErr("UpdateUser", err)
	}
	return updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return repoErr("DeleteUser", err)
	}
	return nil
}
