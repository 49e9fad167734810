package db

import (
	"context"
	"errors"
	"time"

	"github.com/beststore/accounts/internal/config"
	"github.com/beststore/accounts/internal/domain/user"
)

type AdminDirectory interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser provisions the configured elevated account if it does not
// exist yet. Self-registration can never produce this role, so this is the
// only way in. It is a no-op when no admin credentials are configured.
func EnsureAdminUser(ctx context.Context, dir AdminDirectory, hasher PasswordHasher, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	// check if the user exists
	_, err := dir.FindByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := hasher.Hash(cfg.AdminPassword)

	if err != nil {
		return err
	}

	role := cfg.AdminRole
	if role == "" {
		role = user.RoleAdmin
	}

	_, err = dir.Create(ctx, user.User{
		FirstName:    cfg.AdminFirstName,
		LastName:     cfg.AdminLastName,
		Email:        cfg.AdminEmail,
		Address:      "",
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})

	// lost a race with another instance provisioning the same account
	if errors.Is(err, user.ErrEmailAlreadyUsed) {
		return nil
	}

	return err
}
