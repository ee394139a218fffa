package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carelink-solutions/carelink-auth/internal/auth"
	"github.com/carelink-solutions/carelink-auth/internal/domain"
	"github.com/carelink-solutions/carelink-auth/internal/event"
	"github.com/carelink-solutions/carelink-auth/internal/repository"
	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
	"github.com/carelink-solutions/carelink-auth/pkg/pagination"
	"github.com/carelink-solutions/carelink-auth/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/carelink-solutions/carelink-auth/internal/service")

// DefaultStoreTimeout bounds each credential store call when none is
// configured.
const DefaultStoreTimeout = 5 * time.Second

const storeName = "credential store"

// Options configures a UserService.
type Options struct {
	StoreTimeout time.Duration
	// AdminIDs holds the lower-cased ids of users allowed to manage every
	// account. Ids are assigned by the store, so no user can claim one.
	AdminIDs map[string]struct{}
}

// UserService implements registration, login, session revocation and user
// management.
type UserService struct {
	repo         repository.UserRepository
	hasher       auth.PasswordHasher
	tokens       *auth.TokenService
	events       event.Publisher
	logger       *slog.Logger
	storeTimeout time.Duration
	admins       map[string]struct{}

	// dummyHash is compared against on unknown emails so both login
	// failures cost one bcrypt comparison.
	dummyHash string
}

func NewUserService(
	repo repository.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.TokenService,
	events event.Publisher,
	logger *slog.Logger,
	opts Options,
) *UserService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if events == nil {
		events = event.Discard{}
	}
	if opts.AdminIDs == nil {
		opts.AdminIDs = map[string]struct{}{}
	}

	dummy, err := hasher.Hash("carelink-timing-equalizer")
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", slog.String("error", err.Error()))
	}

	return &UserService{
		repo:         repo,
		hasher:       hasher,
		tokens:       tokens,
		events:       events,
		logger:       logger,
		storeTimeout: opts.StoreTimeout,
		admins:       opts.AdminIDs,
		dummyHash:    dummy,
	}
}

// --- Input types ---

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email              string
	Password           string
	Role               domain.Role
	CaregiverID        string
	PatientID          string
	Phone              string
	Address1           string
	Address2           string
	City               string
	State              string
	County             string
	Zip                string
	FirstName          string
	LastName           string
	AgreeTerms         bool
	AgreePrivacyPolicy bool
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// UpdateUserInput is a partial update. Password, when set, is re-hashed and
// invalidates every outstanding token of the user.
type UpdateUserInput struct {
	domain.UserUpdate
	Password *string
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User   *domain.User
	Tokens *domain.TokenPair
}

// --- Auth operations ---

// Register creates a new user. The email is normalized before the
// uniqueness check.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "UserService.Register")
	defer span.End()

	user := &domain.User{
		Email:              domain.NormalizeEmail(in.Email),
		Role:               in.Role,
		CaregiverID:        optional(in.CaregiverID),
		PatientID:          optional(in.PatientID),
		Phone:              in.Phone,
		Address1:           in.Address1,
		Address2:           in.Address2,
		City:               in.City,
		State:              in.State,
		County:             in.County,
		Zip:                in.Zip,
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		AgreeTerms:         in.AgreeTerms,
		AgreePrivacyPolicy: in.AgreePrivacyPolicy,
	}

	if !in.AgreeTerms || !in.AgreePrivacyPolicy {
		return nil, apperrors.InvalidInput("terms and privacy policy must be accepted")
	}
	if err := user.Validate(); err != nil {
		return nil, apperrors.Validation("user record is invalid", err)
	}

	_, err := s.getByEmail(ctx, user.Email)
	switch {
	case err == nil:
		registrationsTotal.WithLabelValues(outcomeConflict).Inc()
		return nil, emailExists()
	case !errors.Is(err, apperrors.ErrNotFound):
		registrationsTotal.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		registrationsTotal.WithLabelValues(outcomeError).Inc()
		return nil, apperrors.Internal(err)
	}
	user.PasswordHash = hash

	err = s.withStore(ctx, "create user", func(ctx context.Context) error {
		return s.repo.Create(ctx, user)
	})
	if err != nil {
		// A concurrent registration may win the race after the pre-check.
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			registrationsTotal.WithLabelValues(outcomeConflict).Inc()
			return nil, emailExists()
		}
		registrationsTotal.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	registrationsTotal.WithLabelValues(outcomeSuccess).Inc()
	s.publish(ctx, "user.registered", user, s.events.PublishUserRegistered)
	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// Login checks the credentials and issues a token pair. Unknown emails and
// wrong passwords produce the same error.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "UserService.Login")
	defer span.End()

	user, err := s.getByEmail(ctx, domain.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_, _ = s.hasher.Verify(in.Password, s.dummyHash)
			loginsTotal.WithLabelValues(outcomeInvalid).Inc()
			return nil, apperrors.InvalidCredentials()
		}
		loginsTotal.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		loginsTotal.WithLabelValues(outcomeError).Inc()
		return nil, apperrors.Internal(fmt.Errorf("verify password for user %s: %w", user.ID, err))
	}
	if !ok {
		loginsTotal.WithLabelValues(outcomeInvalid).Inc()
		s.logger.InfoContext(ctx, "login rejected", slog.String("user_id", user.ID))
		return nil, apperrors.InvalidCredentials()
	}

	tokens, err := s.tokens.IssuePair(user)
	if err != nil {
		loginsTotal.WithLabelValues(outcomeError).Inc()
		return nil, apperrors.Internal(err)
	}

	loginsTotal.WithLabelValues(outcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return &LoginResult{User: user, Tokens: tokens}, nil
}

// RevokeSessions bumps the user's token version, which invalidates every
// token issued so far.
func (s *UserService) RevokeSessions(ctx context.Context, user *domain.User) error {
	var version int
	err := s.withStore(ctx, "revoke sessions", func(ctx context.Context) error {
		v, err := s.repo.IncrementTokenVersion(ctx, user.ID)
		version = v
		return err
	})
	if err != nil {
		return err
	}

	sessionRevocationsTotal.Inc()
	s.publish(ctx, "user.sessions_revoked", user, s.events.PublishSessionsRevoked)
	s.logger.InfoContext(ctx, "sessions revoked",
		slog.String("user_id", user.ID),
		slog.Int("token_version", version),
	)
	return nil
}

// FindByID loads a user for the session middleware.
func (s *UserService) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user *domain.User
	err := s.withStore(ctx, "get user", func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, id)
		user = u
		return err
	})
	return user, err
}

// --- User management ---

// IsAdmin reports whether u may manage every account.
func (s *UserService) IsAdmin(u *domain.User) bool {
	if u == nil || u.ID == "" {
		return false
	}
	_, ok := s.admins[strings.ToLower(u.ID)]
	return ok
}

// ListUsers returns one page of users. Admin only.
func (s *UserService) ListUsers(ctx context.Context, actor *domain.User, params pagination.Params) (*pagination.Result[domain.User], error) {
	if !s.IsAdmin(actor) {
		return nil, apperrors.Forbidden("only administrators may list users")
	}

	var (
		users []domain.User
		total int
	)
	err := s.withStore(ctx, "list users", func(ctx context.Context) error {
		var err error
		users, total, err = s.repo.List(ctx, params.Offset, params.PerPage)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := pagination.NewResult(users, total, params)
	return &result, nil
}

// GetUser returns the user with the given id. Users may read their own
// record; admins may read any.
func (s *UserService) GetUser(ctx context.Context, actor *domain.User, id string) (*domain.User, error) {
	if err := s.authorize(actor, id); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// UpdateUser applies a partial update and re-validates the merged record. A
// password change bumps the token version in the same store write; otherwise
// the stored version is kept as is.
func (s *UserService) UpdateUser(ctx context.Context, actor *domain.User, id string, in UpdateUserInput) (*domain.User, error) {
	if err := s.authorize(actor, id); err != nil {
		return nil, err
	}

	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Role != nil && *in.Role != user.Role && !s.IsAdmin(actor) {
		return nil, apperrors.Forbidden("only administrators may change a role")
	}

	in.Apply(user)
	if err := user.Validate(); err != nil {
		return nil, apperrors.Validation("user record is invalid", err)
	}

	revoke := in.Password != nil
	if revoke {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		user.PasswordHash = hash
	}

	err = s.withStore(ctx, "update user", func(ctx context.Context) error {
		return s.repo.Update(ctx, user, revoke)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, emailExists()
		}
		return nil, err
	}

	s.publish(ctx, "user.updated", user, s.events.PublishUserUpdated)
	s.logger.InfoContext(ctx, "user updated",
		slog.String("user_id", user.ID),
		slog.Bool("password_changed", revoke),
	)

	return user, nil
}

// DeleteUser removes the user and returns the deleted record.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, id string) (*domain.User, error) {
	if err := s.authorize(actor, id); err != nil {
		return nil, err
	}

	var user *domain.User
	err := s.withStore(ctx, "delete user", func(ctx context.Context) error {
		u, err := s.repo.Delete(ctx, id)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "user.deleted", user, s.events.PublishUserDeleted)
	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", user.ID))

	return user, nil
}

// --- helpers ---

func (s *UserService) authorize(actor *domain.User, id string) error {
	if actor == nil {
		return apperrors.Unauthorized("authentication required")
	}
	if actor.ID != id && !s.IsAdmin(actor) {
		return apperrors.Forbidden("you may only access your own account")
	}
	return nil
}

func (s *UserService) getByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user *domain.User
	err := s.withStore(ctx, "get user by email", func(ctx context.Context) error {
		u, err := s.repo.GetByEmail(ctx, email)
		user = u
		return err
	})
	return user, err
}

// withStore runs fn under the store timeout. A deadline overrun becomes a
// 504; AppErrors pass through; anything else is wrapped with op.
func (s *UserService) withStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		storeTimeoutsTotal.WithLabelValues(op).Inc()
		return apperrors.Timeout(storeName, fmt.Errorf("%s: %w", op, err))
	case errors.As(err, &appErr), errors.Is(err, apperrors.ErrNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// publish sends a domain event. Failures are logged and never fail the
// request.
func (s *UserService) publish(ctx context.Context, name string, u *domain.User, fn func(context.Context, *domain.User) error) {
	if err := fn(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event_type", name),
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	}
}

func emailExists() *apperrors.AppError {
	return apperrors.Conflict("EMAIL_EXISTS", "a user with this email already exists")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
