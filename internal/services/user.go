package services

import (
	"context"

	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdatePhoneNumber(ctx context.Context, id int, phoneNumber string) error
	UpdatePassword(ctx context.Context, id int, verify func(currentHash string) (string, error)) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// Register hashes the password and creates the account. Duplicate usernames
// or emails surface as store.ErrConflict.
func (s *UserService) Register(ctx context.Context, user types.User, password string) (types.User, error) {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = hashed
	user.IsActive = true
	return s.repo.Create(ctx, user)
}

// ChangePassword verifies the current password and writes the new hash in
// one transaction. A wrong current password fails with
// auth.ErrInvalidCredentials and leaves the stored hash untouched.
func (s *UserService) ChangePassword(ctx context.Context, id int, currentPassword, newPassword string) error {
	return s.repo.UpdatePassword(ctx, id, func(currentHash string) (string, error) {
		if !auth.VerifyPassword(currentPassword, currentHash) {
			return "", auth.ErrInvalidCredentials
		}
		return auth.HashPassword(newPassword)
	})
}

// ChangePhoneNumber updates the user's phone number.
func (s *UserService) ChangePhoneNumber(ctx context.Context, id int, phoneNumber string) error {
	return s.repo.UpdatePhoneNumber(ctx, id, phoneNumber)
}
