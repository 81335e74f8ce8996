package account

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/ignite/investwise/internal/domain"
	"github.com/ignite/investwise/internal/pkg/logger"
	"github.com/ignite/investwise/internal/service/investment"
)

var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

const minPasswordLen = 6

// Service implements account business logic. It is safe for concurrent use.
type Service struct {
	auth     AuthProvider
	profiles ProfileDirectory
}

// NewService creates an account service.
func NewService(auth AuthProvider, profiles ProfileDirectory) *Service {
	return &Service{auth: auth, profiles: profiles}
}

// Normalize trims every field, lower-cases the email and upper-cases the PAN.
func Normalize(reg domain.Registration) domain.Registration {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Phone = strings.TrimSpace(reg.Phone)
	reg.Location = strings.TrimSpace(reg.Location)
	reg.PAN = strings.ToUpper(strings.TrimSpace(reg.PAN))
	return reg
}

// Validate checks a normalized registration and returns the first failure.
func Validate(reg domain.Registration) *FieldError {
	if reg.Name == "" {
		return &FieldError{Field: "name", Message: "Please enter your name."}
	}
	if addr, err := mail.ParseAddress(reg.Email); err != nil || addr.Address != reg.Email {
		return &FieldError{Field: "email", Message: "Please enter a valid email address."}
	}
	if !investment.ValidatePhone(reg.Phone) {
		return &FieldError{Field: "phone", Message: "Invalid phone number!"}
	}
	if !panPattern.MatchString(reg.PAN) {
		return &FieldError{Field: "pan", Message: "Invalid PAN format (ABCDE1234F)"}
	}
	if len(reg.Password) < minPasswordLen {
		return &FieldError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters.", minPasswordLen)}
	}
	if reg.Password != reg.ConfirmPassword {
		return &FieldError{Field: "confirm_password", Message: "Passwords do not match!"}
	}
	return nil
}

// SignUp validates reg, rejects duplicates, registers the user and writes
// the profile row. A failed profile write is logged; the account exists.
func (s *Service) SignUp(ctx context.Context, reg domain.Registration) error {
	reg = Normalize(reg)
	if fe := Validate(reg); fe != nil {
		return fe
	}
	if err := s.checkDuplicates(ctx, reg); err != nil {
		return err
	}

	userID, err := s.auth.SignUp(ctx, reg)
	if err != nil {
		logger.Warn("sign-up rejected by provider", "email", reg.Email, "error", err)
		return &ProviderError{Cause: err}
	}

	if userID != "" {
		prof := domain.Profile{
			ID:       userID,
			FullName: reg.Name,
			Username: reg.Username,
			Email:    reg.Email,
			Phone:    reg.Phone,
			PAN:      reg.PAN,
			Location: reg.Location,
		}
		if err := s.profiles.Create(ctx, prof); err != nil {
			logger.Error("profile insert failed", "user_id", userID, "error", err)
		}
	}

	logger.Info("user signed up", "user_id", userID, "email", reg.Email)
	return nil
}

func (s *Service) checkDuplicates(ctx context.Context, reg domain.Registration) error {
	checks := []struct {
		column, value, message string
	}{
		{"email", reg.Email, "Email already registered."},
		{"phone", reg.Phone, "Phone already registered."},
		{"pan", reg.PAN, "PAN already registered."},
	}
	for _, c := range checks {
		taken, err := s.profiles.Exists(ctx, c.column, c.value)
		if err != nil {
			logger.Error("profile duplicate check failed", "column", c.column, "error", err)
			return fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		if taken {
			return &FieldError{Field: c.column, Message: c.message}
		}
	}
	return nil
}

// SignIn exchanges credentials for a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, &FieldError{Field: "email", Message: "Please enter your email and password."}
	}

	sess, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		logger.Warn("sign-in failed", "email", email, "error", err)
		return nil, &ProviderError{Cause: err}
	}
	logger.Info("user signed in", "user_id", sess.Identity.UserID)
	return sess, nil
}

// SignOut revokes the provider session. Failures are logged and swallowed:
// the local session is dropped either way.
func (s *Service) SignOut(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	if err := s.auth.SignOut(ctx, accessToken); err != nil {
		logger.Warn("provider sign-out failed", "error", err)
	}
}
