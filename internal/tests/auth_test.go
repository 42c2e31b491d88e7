package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ridepool/internal/domain"
	"ridepool/internal/service"
)

// ──────────────────────────────────────────────
// 1. REGISTRATION
// ──────────────────────────────────────────────

const testJWTSecret = "test-secret"

func newAuthFixture() (*MockUserRepository, *MockDispatcher, *service.AuthService) {
	users := NewMockUserRepository()
	dispatcher := NewMockDispatcher()
	svc := service.NewAuthService(users, dispatcher, testJWTSecret, time.Hour)
	return users, dispatcher, svc
}

func TestRegister_ValidRequest_CreatesUnverifiedAccount(t *testing.T) {
	t.Parallel()

	users, dispatcher, svc := newAuthFixture()

	user, err := svc.Register(context.Background(), service.RegisterRequest{
		Email:     "anna@example.com",
		Password:  "correct horse",
		FirstName: "Anna",
		LastName:  "Berzina",
		UserType:  domain.UserTypeDriver,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if user.Verified {
		t.Error("fresh account must start unverified")
	}
	if user.VerificationToken == "" {
		t.Error("expected a verification token")
	}
	if user.PasswordHash == "correct horse" {
		t.Error("password must not be stored in the clear")
	}
	if users.User(user.ID) == nil {
		t.Error("expected account to be persisted")
	}
	if len(dispatcher.VerifyEmails) != 1 {
		t.Errorf("expected one verification mail, got %d", len(dispatcher.VerifyEmails))
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	_, _, svc := newAuthFixture()

	testCases := []struct {
		name    string
		req     service.RegisterRequest
		wantErr error
	}{
		{
			name:    "missing email",
			req:     service.RegisterRequest{Password: "longenough", FirstName: "A", LastName: "B"},
			wantErr: service.ErrMissingFields,
		},
		{
			name:    "short password",
			req:     service.RegisterRequest{Email: "a@example.com", Password: "short", FirstName: "A", LastName: "B"},
			wantErr: service.ErrWeakPassword,
		},
		{
			name: "unknown user type",
			req: service.RegisterRequest{
				Email: "a@example.com", Password: "longenough",
				FirstName: "A", LastName: "B", UserType: "admin",
			},
			wantErr: service.ErrInvalidUserType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegister_DuplicateEmail_Rejected(t *testing.T) {
	t.Parallel()

	_, _, svc := newAuthFixture()

	req := service.RegisterRequest{
		Email: "anna@example.com", Password: "longenough",
		FirstName: "Anna", LastName: "Berzina",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	_, err := svc.Register(context.Background(), req)
	if !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got: %v", err)
	}
}

// ──────────────────────────────────────────────
// 2. VERIFICATION AND LOGIN
// ──────────────────────────────────────────────

func TestLogin_FullFlow(t *testing.T) {
	t.Parallel()

	_, _, svc := newAuthFixture()

	user, err := svc.Register(context.Background(), service.RegisterRequest{
		Email: "anna@example.com", Password: "longenough",
		FirstName: "Anna", LastName: "Berzina", UserType: domain.UserTypeBoth,
	})
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	// Unverified accounts cannot log in.
	if _, _, err := svc.Login(context.Background(), "anna@example.com", "longenough"); !errors.Is(err, service.ErrAccountNotVerified) {
		t.Fatalf("expected ErrAccountNotVerified, got: %v", err)
	}

	if err := svc.Verify(context.Background(), user.VerificationToken); err != nil {
		t.Fatalf("verification failed: %v", err)
	}

	token, loggedIn, err := svc.Login(context.Background(), "anna@example.com", "longenough")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, loggedIn.ID)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("issued token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["user_id"] != user.ID {
		t.Errorf("expected user_id claim %s, got %v", user.ID, claims["user_id"])
	}
	if claims["user_type"] != string(domain.UserTypeBoth) {
		t.Errorf("expected user_type claim, got %v", claims["user_type"])
	}
}

func TestLogin_BadCredentials_Indistinguishable(t *testing.T) {
	t.Parallel()

	users, _, svc := newAuthFixture()
	users.AddUser(&domain.User{
		ID:           "u-1",
		Email:        "anna@example.com",
		PasswordHash: "$2a$10$invalidhashinvalidhashinvalidhashinvalidhashinvalid",
		Verified:     true,
	})

	if _, _, err := svc.Login(context.Background(), "anna@example.com", "wrong"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody@example.com", "wrong"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got: %v", err)
	}
}
