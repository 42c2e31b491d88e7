package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ridepool/internal/domain"
	"ridepool/internal/repository"
)

// AuthService handles registration, account verification and login.
// It is the token-issuing half of the auth boundary; the middleware is
// the resolving half.
type AuthService struct {
	userRepo   repository.UserRepository
	dispatcher NotificationDispatcher
	jwtSecret  []byte
	tokenTTL   time.Duration
}

// NewAuthService creates a new AuthService. dispatcher may be nil.
func NewAuthService(userRepo repository.UserRepository, dispatcher NotificationDispatcher, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		dispatcher: dispatcher,
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
	}
}

// RegisterRequest contains the parameters for creating an account.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	UserType  domain.UserType
}

// Register creates an unverified account and enqueues the verification
// mail. The account cannot log in until verified.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if req.Email == "" || req.FirstName == "" || req.LastName == "" {
		return nil, ErrMissingFields
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	switch req.UserType {
	case domain.UserTypeDriver, domain.UserTypePassenger, domain.UserTypeBoth:
	case "":
		req.UserType = domain.UserTypePassenger
	default:
		return nil, ErrInvalidUserType
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:                uuid.New().String(),
		Email:             req.Email,
		PasswordHash:      string(hash),
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		UserType:          req.UserType,
		Verified:          false,
		VerificationToken: uuid.New().String(),
		CreatedAt:         time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if s.dispatcher != nil {
		s.dispatcher.VerificationRequested(user)
	}

	return user, nil
}

// Verify flags the account matching the verification token as verified.
func (s *AuthService) Verify(ctx context.Context, token string) error {
	if token == "" {
		return repository.ErrNotFound
	}

	user, err := s.userRepo.GetByVerificationToken(ctx, token)
	if err != nil {
		return err
	}

	return s.userRepo.MarkVerified(ctx, user.ID)
}

// GetUser fetches an account by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, repository.ErrNotFound
	}
	return s.userRepo.GetByID(ctx, id)
}

// Login checks the credentials and issues a signed bearer token. An
// unknown email and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if !user.Verified {
		return "", nil, ErrAccountNotVerified
	}

	claims := jwt.MapClaims{
		"user_id":   user.ID,
		"email":     user.Email,
		"user_type": string(user.UserType),
		"exp":       time.Now().Add(s.tokenTTL).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}
