package user

import (
	"context"
	"testing"

	"studieplekken/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockUserRepo struct{ mock.Mock }

func (m *MockUserRepo) Create(ctx context.Context, name, email, passwordHash, role string) (*User, error) {
	args := m.Called(ctx, name, email, passwordHash, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserRepo) FindByID(ctx context.Context, id int) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepo) Exists(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func TestRegister(t *testing.T) {
	t.Run("Successful registration", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, "secret")

		repo.On("EmailExists", mock.Anything, "new@example.com").Return(false, nil)
		repo.On("Create", mock.Anything, "New Student", "new@example.com", mock.AnythingOfType("string"), auth.RoleStudent).
			Return(&User{ID: 1, Name: "New Student", Email: "new@example.com", Role: auth.RoleStudent}, nil)

		u, access, refresh, err := svc.Register(context.Background(), RegisterRequest{
			Name:     "New Student",
			Email:    "new@example.com",
			Password: "password123",
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, u.ID)
		assert.NotEmpty(t, access)
		assert.NotEmpty(t, refresh)
		repo.AssertExpectations(t)
	})

	t.Run("Duplicate email", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, "secret")

		repo.On("EmailExists", mock.Anything, "taken@example.com").Return(true, nil)

		_, _, _, err := svc.Register(context.Background(), RegisterRequest{
			Name:     "Someone",
			Email:    "taken@example.com",
			Password: "password123",
		})

		assert.Equal(t, ErrEmailExists, err)
	})
}

func TestLogin(t *testing.T) {
	hash, _ := auth.HashPassword("correct-password")

	t.Run("Valid credentials", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, "secret")

		repo.On("FindByEmail", mock.Anything, "student@example.com").
			Return(&User{ID: 2, Email: "student@example.com", PasswordHash: hash, Role: auth.RoleStudent}, nil)

		u, access, _, err := svc.Login(context.Background(), LoginRequest{
			Email:    "student@example.com",
			Password: "correct-password",
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, u.ID)
		assert.NotEmpty(t, access)
	})

	t.Run("Wrong password", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, "secret")

		repo.On("FindByEmail", mock.Anything, "student@example.com").
			Return(&User{ID: 2, Email: "student@example.com", PasswordHash: hash, Role: auth.RoleStudent}, nil)

		_, _, _, err := svc.Login(context.Background(), LoginRequest{
			Email:    "student@example.com",
			Password: "wrong-password",
		})

		assert.Equal(t, ErrInvalidCredentials, err)
	})

	t.Run("Unknown user", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, "secret")

		repo.On("FindByEmail", mock.Anything, "nobody@example.com").
			Return(nil, ErrUserNotFound)

		_, _, _, err := svc.Login(context.Background(), LoginRequest{
			Email:    "nobody@example.com",
			Password: "whatever1",
		})

		assert.Equal(t, ErrInvalidCredentials, err)
	})
}
