// Package account validates and submits new customer registrations.
package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

// ErrInvalidRegistration is matched by *ValidationError.
var ErrInvalidRegistration = errors.New("account: invalid registration")

const (
	GenderMale   = "Nam"
	GenderFemale = "Nữ"

	minPasswordLen = 6
	minBirthYear   = 1920
)

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern = regexp.MustCompile(`^(?:\+84|0)[1-9][0-9]{8}$`)
)

// ValidationError maps each rejected field to the reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "account: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRegistration
}

// Normalize trims every text field and defaults the gender to male.
func Normalize(reg api.Registration) api.Registration {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)
	reg.IDNumber = strings.TrimSpace(reg.IDNumber)
	reg.Gender = strings.TrimSpace(reg.Gender)
	if reg.Gender == "" {
		reg.Gender = GenderMale
	}
	return reg
}

// Validate checks a normalized registration against the signup form rules.
func Validate(reg api.Registration, now time.Time) error {
	fields := map[string]string{}
	if reg.Name == "" {
		fields["name"] = "required"
	}
	if !emailPattern.MatchString(reg.Email) {
		fields["email"] = "not a valid address"
	}
	if len(strings.TrimSpace(reg.Password)) < minPasswordLen {
		fields["password"] = fmt.Sprintf("at least %d characters", minPasswordLen)
	}
	if !phonePattern.MatchString(reg.Phone) {
		fields["phone"] = "expected 0xxxxxxxxx or +84xxxxxxxxx"
	}
	if n := len(reg.IDNumber); n != 9 && n != 12 {
		fields["id_number"] = "must have 9 or 12 digits"
	}
	if reg.Birthday.IsZero() || !reg.Birthday.Before(now) || reg.Birthday.Year() < minBirthYear {
		fields["birthday"] = "not a valid date of birth"
	}
	if reg.Gender != GenderMale && reg.Gender != GenderFemale {
		fields["gender"] = fmt.Sprintf("use %q or %q", GenderMale, GenderFemale)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Registrar creates accounts on the backend.
type Registrar interface {
	Register(ctx context.Context, reg api.Registration) error
}

// Service registers customers.
type Service struct {
	registrar Registrar
	now       func() time.Time
	logger    *logging.Logger
}

// NewService builds a Service over registrar.
func NewService(registrar Registrar, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{registrar: registrar, now: time.Now, logger: logger}
}

// WithClock overrides the clock used for the birthday check.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Register validates reg and creates the account. Nothing is sent when
// validation fails.
func (s *Service) Register(ctx context.Context, reg api.Registration) error {
	reg = Normalize(reg)
	if err := Validate(reg, s.now()); err != nil {
		return err
	}
	if err := s.registrar.Register(ctx, reg); err != nil {
		return fmt.Errorf("account: %w", err)
	}
	s.logger.Info("customer registered")
	return nil
}
