package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customjwt "github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/password"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/services/auth"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	args := m.Called(ctx, email, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type JwtMakerMock struct {
	mock.Mock
}

func (m *JwtMakerMock) GenerateToken(userID, email string) (string, error) {
	args := m.Called(userID, email)
	return args.String(0), args.Error(1)
}

func (m *JwtMakerMock) ParseToken(token string) (*customjwt.CustomClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customjwt.CustomClaims), args.Error(1)
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		setupMocks func(r *UserRepoMock)
		wantErr    error
		anyErr     bool
	}{
		{
			name:     "successful registration",
			email:    " Test@Example.com ",
			password: "password123",
			setupMocks: func(r *UserRepoMock) {
				r.On("CreateUser", mock.Anything, "test@example.com", mock.MatchedBy(func(hash string) bool {
					return password.CompareHash(hash, "password123") == nil
				})).Return(&models.User{ID: "user-1", Email: "test@example.com", SubscriptionStatus: models.StatusInactive}, nil).Once()
			},
		},
		{
			name:     "duplicate email",
			email:    "test@example.com",
			password: "password123",
			setupMocks: func(r *UserRepoMock) {
				r.On("CreateUser", mock.Anything, "test@example.com", mock.Anything).
					Return(nil, storage.ErrConflict).Once()
			},
			wantErr: auth.ErrUserExists,
		},
		{
			name:     "repository error",
			email:    "test@example.com",
			password: "password123",
			setupMocks: func(r *UserRepoMock) {
				r.On("CreateUser", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db error")).Once()
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			svc := auth.NewAuthService(repo, new(JwtMakerMock))
			tt.setupMocks(repo)

			user, err := svc.Register(context.Background(), tt.email, tt.password)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			case tt.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, auth.ErrUserExists)
			default:
				require.NoError(t, err)
				assert.Equal(t, "user-1", user.ID)
				assert.Equal(t, models.StatusInactive, user.SubscriptionStatus)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	// Правильный сырой пароль для теста
	rawPassword := "correctpassword"
	hashedPassword, err := password.GetHash(rawPassword)
	require.NoError(t, err)

	testUser := &models.User{
		ID:           "user-1",
		Email:        "test@example.com",
		PasswordHash: hashedPassword,
	}

	tests := []struct {
		name       string
		email      string
		password   string
		setupMocks func(r *UserRepoMock, j *JwtMakerMock)
		wantToken  string
		wantErr    error
		anyErr     bool
	}{
		{
			name:     "successful login",
			email:    "test@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "test@example.com").Return(testUser, nil).Once()
				j.On("GenerateToken", "user-1", "test@example.com").Return("jwt-token-123", nil).Once()
			},
			wantToken: "jwt-token-123",
		},
		{
			name:     "user not found",
			email:    "nobody@example.com",
			password: "password",
			setupMocks: func(r *UserRepoMock, _ *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "nobody@example.com").Return(nil, storage.ErrNotFound).Once()
			},
			wantErr: auth.ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			email:    "test@example.com",
			password: "wrongpassword",
			setupMocks: func(r *UserRepoMock, _ *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "test@example.com").Return(testUser, nil).Once()
			},
			wantErr: auth.ErrInvalidCredentials,
		},
		{
			name:     "store unavailable",
			email:    "test@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, _ *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "test@example.com").Return(nil, storage.ErrUnavailable).Once()
			},
			wantErr: storage.ErrUnavailable,
		},
		{
			name:     "token generation error",
			email:    "test@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "test@example.com").Return(testUser, nil).Once()
				j.On("GenerateToken", "user-1", "test@example.com").Return("", errors.New("token error")).Once()
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			jwtMock := new(JwtMakerMock)
			svc := auth.NewAuthService(repo, jwtMock)
			tt.setupMocks(repo, jwtMock)

			token, user, err := svc.Login(context.Background(), tt.email, tt.password)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
			case tt.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantToken, token)
				assert.Equal(t, "user-1", user.ID)
			}

			repo.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_Profile(t *testing.T) {
	repo := new(UserRepoMock)
	svc := auth.NewAuthService(repo, new(JwtMakerMock))

	repo.On("GetUser", mock.Anything, "user-1").
		Return(&models.User{ID: "user-1", SubscriptionStatus: models.StatusActive}, nil).Once()
	repo.On("GetUser", mock.Anything, "user-x").Return(nil, storage.ErrNotFound).Once()

	user, err := svc.Profile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, user.SubscriptionStatus)

	_, err = svc.Profile(context.Background(), "user-x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	repo.AssertExpectations(t)
}

func TestAuthService_ValidateToken(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		setupMocks func(j *JwtMakerMock)
		wantUserID string
		wantErr    bool
	}{
		{
			name:  "valid token",
			token: "valid-token",
			setupMocks: func(j *JwtMakerMock) {
				j.On("ParseToken", "valid-token").Return(&customjwt.CustomClaims{UserID: "user-1"}, nil).Once()
			},
			wantUserID: "user-1",
		},
		{
			name:  "invalid token",
			token: "invalid-token",
			setupMocks: func(j *JwtMakerMock) {
				j.On("ParseToken", "invalid-token").Return(nil, errors.New("invalid token")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jwtMock := new(JwtMakerMock)
			svc := auth.NewAuthService(new(UserRepoMock), jwtMock)
			tt.setupMocks(jwtMock)

			userID, err := svc.ValidateToken(context.Background(), tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantUserID, userID)
			jwtMock.AssertExpectations(t)
		})
	}
}
