package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/store"
)

// IdentityService binds owned usernames to generated display names.
type IdentityService struct {
	store store.IdentityStore
	log   *zerolog.Logger
}

// NewIdentityService wraps the durable identity store.
func NewIdentityService(st store.IdentityStore, logger *zerolog.Logger) *IdentityService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &IdentityService{store: st, log: logger}
}

// Bind creates the identity or rebinds it to generated. The previous display
// name is kept for audit and the identity is marked online.
func (s *IdentityService) Bind(ctx context.Context, owned, generated string) (*Identity, error) {
	owned = strings.TrimSpace(owned)
	if owned == "" {
		return nil, fmt.Errorf("bind identity: %w: username is required", ErrValidation)
	}
	if generated == "" {
		return nil, fmt.Errorf("bind identity %q: %w: display name is required", owned, ErrValidation)
	}

	rec, err := s.store.UpsertIdentity(ctx, owned, generated)
	if err != nil {
		return nil, fmt.Errorf("bind identity %q: %w: %w", owned, ErrStoreUnavailable, err)
	}
	return identityFromStore(rec), nil
}

// Lookup reports whether owned was ever bound. Store failures read as absent.
func (s *IdentityService) Lookup(ctx context.Context, owned string) (*Identity, bool) {
	if owned == "" {
		return nil, false
	}
	rec, err := s.store.FindIdentity(ctx, owned)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("username", owned).Msg("identity lookup failed")
		}
		return nil, false
	}
	return identityFromStore(rec), true
}

// MarkOffline clears the online flag. An identity that was never bound is not an error.
func (s *IdentityService) MarkOffline(ctx context.Context, owned string) error {
	if owned == "" {
		return nil
	}
	err := s.store.MarkIdentityOffline(ctx, owned)
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("mark %q offline: %w: %w", owned, ErrStoreUnavailable, err)
	}
}

// SetInPrivate records whether the identity has its private window open.
func (s *IdentityService) SetInPrivate(ctx context.Context, owned string, inPrivate bool) (*Identity, error) {
	owned = strings.TrimSpace(owned)
	if owned == "" {
		return nil, fmt.Errorf("set in_private: %w: username is required", ErrValidation)
	}
	rec, err := s.store.SetInPrivate(ctx, owned, inPrivate)
	switch {
	case err == nil:
		return identityFromStore(rec), nil
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("set in_private %q: %w", owned, ErrNotFound)
	default:
		return nil, fmt.Errorf("set in_private %q: %w: %w", owned, ErrStoreUnavailable, err)
	}
}
