package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/shared"
	"github.com/storeadmin/storeadmin/jobs"
)

// Identity is the identity service boundary.
type Identity interface {
	SignIn(ctx context.Context, email, password string) (*identity.Principal, *identity.Credentials, error)
	SignUp(ctx context.Context, email, password string, profile identity.Profile) (*identity.Principal, *identity.Credentials, error)
	SignOut(ctx context.Context, creds identity.Credentials) error
}

// AdminLookup resolves active admin accounts.
type AdminLookup interface {
	LookupAdmin(ctx context.Context, principalID string) *accounts.AdminAccount
}

// AccountWriter holds the directory writes performed by sign-in flows.
type AccountWriter interface {
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	CreateCustomerAccount(ctx context.Context, customer *accounts.CustomerAccount) error
}

// Mailer queues outgoing email.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// SignUpInput carries the customer sign-up form.
type SignUpInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Service implements the sign-in, sign-up and sign-out flows.
type Service struct {
	identity  Identity
	admins    AdminLookup
	accounts  AccountWriter
	mailer    Mailer
	publicURL string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service. mailer may be nil, in which case no
// confirmation email is queued.
func NewService(id Identity, admins AdminLookup, writer AccountWriter, mailer Mailer, publicURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		identity:  id,
		admins:    admins,
		accounts:  writer,
		mailer:    mailer,
		publicURL: publicURL,
		logger:    logger,
		now:       time.Now,
	}
}

// SignInAdmin signs in a staff member. A principal without an active admin
// account has its fresh session closed again and gets shared.ErrUnauthorized,
// so no usable session survives the rejection.
func (s *Service) SignInAdmin(ctx context.Context, email, password string) (*accounts.AdminAccount, *identity.Credentials, error) {
	principal, creds, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	admin := s.admins.LookupAdmin(ctx, principal.ID)
	if admin == nil {
		if err := s.identity.SignOut(ctx, *creds); err != nil {
			s.logger.Error("auth revoke rejected admin session", slog.String("principal_id", principal.ID), slog.Any("error", err))
		}
		return nil, nil, shared.ErrUnauthorized
	}
	now := s.now().UTC()
	if err := s.accounts.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		s.logger.Warn("auth update last login", slog.String("admin_id", admin.ID), slog.Any("error", err))
	} else {
		admin.LastLogin = &now
	}
	return admin, creds, nil
}

// SignInCustomer signs in any known principal.
func (s *Service) SignInCustomer(ctx context.Context, email, password string) (*identity.Principal, *identity.Credentials, error) {
	return s.identity.SignIn(ctx, email, password)
}

// SignUpCustomer registers a principal, creates its customer account on the
// free tier and queues a confirmation email. Failures after the identity exists
// are logged rather than returned.
func (s *Service) SignUpCustomer(ctx context.Context, in SignUpInput) (*identity.Principal, *identity.Credentials, error) {
	principal, creds, err := s.identity.SignUp(ctx, in.Email, in.Password, identity.Profile{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
	})
	if err != nil {
		if errors.Is(err, shared.ErrEmailTaken) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("auth: sign up: %w", err)
	}

	customer := &accounts.CustomerAccount{
		AuthUserID:         principal.ID,
		Email:              principal.Email,
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		Phone:              in.Phone,
		IsActive:           true,
		SubscriptionStatus: accounts.SubscriptionFree,
	}
	if err := s.accounts.CreateCustomerAccount(ctx, customer); err != nil {
		s.logger.Error("auth create customer account", slog.String("principal_id", principal.ID), slog.Any("error", err))
	}

	if s.mailer != nil {
		msg := jobs.ConfirmationEmail(principal.Email, customer.DisplayName(), s.publicURL)
		if _, err := s.mailer.EnqueueSendEmail(ctx, msg); err != nil {
			s.logger.Warn("auth enqueue confirmation email", slog.String("to", principal.Email), slog.Any("error", err))
		}
	}
	return principal, creds, nil
}

// SignOut ends the session behind creds.
func (s *Service) SignOut(ctx context.Context, creds identity.Credentials) error {
	if creds.Empty() {
		return nil
	}
	if err := s.identity.SignOut(ctx, creds); err != nil {
		return fmt.Errorf("auth: sign out: %w", err)
	}
	return nil
}
