package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/beststore/accounts/internal/auth"
	"github.com/beststore/accounts/internal/cache"
	"github.com/beststore/accounts/internal/domain/reset"
	"github.com/beststore/accounts/internal/domain/user"
	"github.com/beststore/accounts/internal/observability"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Directory owns identity records. It persists and retrieves; it never
// decides.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	FindByID(ctx context.Context, id int64) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	CountByEmail(ctx context.Context, email string) (int, error)
	Create(ctx context.Context, u user.User) (user.User, error)
	Save(ctx context.Context, u user.User) error
}

// ResetStore keeps at most one outstanding reset request per email.
type ResetStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Find(ctx context.Context, token string) (reset.Request, error)
	Delete(ctx context.Context, token string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(digest, plain string) bool
}

type TokenIssuer interface {
	Issue(u user.User) (string, error)
}

type Options struct {
	// ResetTTL bounds how long a reset token stays usable. Zero disables
	// expiry.
	ResetTTL time.Duration
	// Profiles caches profile reads; nil disables caching.
	Profiles *cache.Cache[int64, user.Profile]
	Prom     *observability.Prom
	Now      func() time.Time
}

type AuthResult struct {
	Token string       `json:"token"`
	User  user.Profile `json:"user"`
}

// fallbackDummyHash is a well-formed cost 10 digest matching no password.
const fallbackDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type Service struct {
	users     Directory
	resets    ResetStore
	hasher    PasswordHasher
	tokens    TokenIssuer
	log       *slog.Logger
	validator *validator.Validate
	opts      Options

	// verified against when the email is unknown so both login failures
	// cost the same
	dummyHash string
}

func NewService(users Directory, resets ResetStore, hasher PasswordHasher, tokens TokenIssuer, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		dummy = fallbackDummyHash
	}

	return &Service{
		users:     users,
		resets:    resets,
		hasher:    hasher,
		tokens:    tokens,
		log:       log,
		validator: newValidator(),
		opts:      opts,
		dummyHash: dummy,
	}
}

func (s *Service) internal(op string, err error) error {
	s.opts.Prom.ObserveAuth(op, "error")
	return oops.In("account").Code(op + "_failed").Wrap(err)
}

func (s *Service) rejected(op string, err error) error {
	s.opts.Prom.ObserveAuth(op, "rejected")
	return err
}

// Register creates a client account and signs the caller in. The count is
// only a fast path; the unique index decides when two registrations race.
func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (AuthResult, error) {
	const op = "register"

	if err := s.validate(req); err != nil {
		return AuthResult{}, s.rejected(op, err)
	}
	if err := s.validate(passwordInput{Password: req.Password}); err != nil {
		return AuthResult{}, s.rejected(op, err)
	}

	n, err := s.users.CountByEmail(ctx, req.Email)
	if err != nil {
		return AuthResult{}, s.internal(op, err)
	}
	if n > 0 {
		return AuthResult{}, s.rejected(op, emailTaken())
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResult{}, s.internal(op, err)
	}

	u, err := s.users.Create(ctx, user.NewFromRegisterRequest(req, hash, s.opts.Now()))
	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyUsed) {
			return AuthResult{}, s.rejected(op, emailTaken())
		}
		return AuthResult{}, s.internal(op, err)
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return AuthResult{}, s.internal(op, err)
	}

	s.log.InfoContext(ctx, "account registered", "user_id", u.ID, "role", u.Role)
	s.opts.Prom.ObserveAuth(op, "ok")

	return AuthResult{Token: token, User: u.Profile()}, nil
}

// Login returns the same ErrUnauthorized for an unknown email and a wrong
// password.
func (s *Service) Login(ctx context.Context, req user.LoginRequest) (AuthResult, error) {
	const op = "login"

	if err := s.validate(req); err != nil {
		return AuthResult{}, s.rejected(op, err)
	}

	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return AuthResult{}, s.internal(op, err)
		}
		s.hasher.Verify(s.dummyHash, req.Password)
		return AuthResult{}, s.rejected(op, ErrUnauthorized)
	}

	if !s.hasher.Verify(u.PasswordHash, req.Password) {
		return AuthResult{}, s.rejected(op, ErrUnauthorized)
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return AuthResult{}, s.internal(op, err)
	}

	s.log.InfoContext(ctx, "login succeeded", "user_id", u.ID)
	s.opts.Prom.ObserveAuth(op, "ok")

	return AuthResult{Token: token, User: u.Profile()}, nil
}

// ForgotPassword supersedes any outstanding reset request for email and
// returns the new token. Delivering it is the caller's job.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	const op = "forgot_password"

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", s.rejected(op, ErrNotFound)
		}
		return "", s.internal(op, err)
	}

	token, err := s.resets.Issue(ctx, u.Email)
	if err != nil {
		return "", s.internal(op, err)
	}

	s.log.InfoContext(ctx, "password reset requested", "user_id", u.ID)
	s.opts.Prom.ObserveAuth(op, "ok")

	return token, nil
}

// ResetPassword redeems token. The request is deleted before the new hash is
// saved, and only the caller whose delete succeeds goes on to save.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	const op = "reset_password"

	if err := s.validate(passwordInput{Password: password}); err != nil {
		return s.rejected(op, err)
	}

	req, err := s.resets.Find(ctx, token)
	if err != nil {
		if errors.Is(err, reset.ErrNotFound) {
			return s.rejected(op, ErrInvalidToken)
		}
		return s.internal(op, err)
	}

	if req.Expired(s.opts.ResetTTL, s.opts.Now()) {
		if err := s.resets.Delete(ctx, token); err != nil && !errors.Is(err, reset.ErrNotFound) {
			s.log.WarnContext(ctx, "expired reset request not removed", "reset_id", req.ID, "err", err)
		}
		return s.rejected(op, ErrInvalidToken)
	}

	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.log.WarnContext(ctx, "reset request without identity", "reset_id", req.ID)
			return s.rejected(op, ErrInvalidToken)
		}
		return s.internal(op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return s.internal(op, err)
	}

	if err := s.resets.Delete(ctx, token); err != nil {
		if errors.Is(err, reset.ErrNotFound) {
			return s.rejected(op, ErrInvalidToken)
		}
		return s.internal(op, err)
	}

	u.PasswordHash = hash
	if err := s.users.Save(ctx, u); err != nil {
		return s.internal(op, err)
	}
	s.forgetProfile(u.ID)

	s.log.InfoContext(ctx, "password reset", "user_id", u.ID)
	s.opts.Prom.ObserveAuth(op, "ok")

	return nil
}

// GetProfile resolves the identity named by verified claims.
func (s *Service) GetProfile(ctx context.Context, claims *auth.Claims) (user.Profile, error) {
	const op = "get_profile"

	if id, ok := claims.IdentityID(); ok && s.opts.Profiles != nil {
		if p, hit := s.opts.Profiles.Get(id); hit {
			return p, nil
		}
	}

	u, err := s.identity(ctx, op, claims)
	if err != nil {
		return user.Profile{}, err
	}

	p := u.Profile()
	if s.opts.Profiles != nil {
		s.opts.Profiles.Set(u.ID, p)
	}
	return p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, claims *auth.Claims, req user.UpdateProfileRequest) (user.Profile, error) {
	const op = "update_profile"

	u, err := s.identity(ctx, op, claims)
	if err != nil {
		return user.Profile{}, err
	}

	if err := s.validate(req); err != nil {
		return user.Profile{}, s.rejected(op, err)
	}

	if req.Email != u.Email {
		n, err := s.users.CountByEmail(ctx, req.Email)
		if err != nil {
			return user.Profile{}, s.internal(op, err)
		}
		if n > 0 {
			return user.Profile{}, s.rejected(op, emailTaken())
		}
	}

	u.ApplyProfileUpdate(req)

	if err := s.users.Save(ctx, u); err != nil {
		switch {
		case errors.Is(err, user.ErrEmailAlreadyUsed):
			return user.Profile{}, s.rejected(op, emailTaken())
		case errors.Is(err, user.ErrNotFound):
			return user.Profile{}, s.rejected(op, ErrUnauthorized)
		}
		return user.Profile{}, s.internal(op, err)
	}
	s.forgetProfile(u.ID)

	s.log.InfoContext(ctx, "profile updated", "user_id", u.ID)
	s.opts.Prom.ObserveAuth(op, "ok")

	return u.Profile(), nil
}

// UpdatePassword enforces the 8-20 character policy. A rejected password
// leaves the stored hash untouched.
func (s *Service) UpdatePassword(ctx context.Context, claims *auth.Claims, password string) error {
	const op = "update_password"

	u, err := s.identity(ctx, op, claims)
	if err != nil {
		return err
	}

	if err := s.validate(passwordInput{Password: password}); err != nil {
		return s.rejected(op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return s.internal(op, err)
	}

	u.PasswordHash = hash
	if err := s.users.Save(ctx, u); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return s.rejected(op, ErrUnauthorized)
		}
		return s.internal(op, err)
	}
	s.forgetProfile(u.ID)

	s.log.InfoContext(ctx, "password updated", "user_id", u.ID)
	s.opts.Prom.ObserveAuth(op, "ok")

	return nil
}

// ListUsers returns every profile, newest first. Callers gate it to admins.
func (s *Service) ListUsers(ctx context.Context) ([]user.Profile, error) {
	const op = "list_users"

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.internal(op, err)
	}

	out := make([]user.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}

	s.opts.Prom.ObserveAuth(op, "ok")
	return out, nil
}

// identity loads the user named by the id claim. A missing or malformed id,
// or an id with no identity behind it, is ErrUnauthorized.
func (s *Service) identity(ctx context.Context, op string, claims *auth.Claims) (user.User, error) {
	id, ok := claims.IdentityID()
	if !ok {
		return user.User{}, s.rejected(op, ErrUnauthorized)
	}

	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, s.rejected(op, ErrUnauthorized)
		}
		return user.User{}, s.internal(op, err)
	}
	return u, nil
}

func (s *Service) forgetProfile(id int64) {
	if s.opts.Profiles != nil {
		s.opts.Profiles.Delete(id)
	}
}
