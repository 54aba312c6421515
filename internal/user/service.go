package user

import (
	"context"
	"fmt"

	"wtcoin/internal/api"
	"wtcoin/internal/logger"

	"github.com/jmoiron/sqlx"
)

var (
	ErrProfileNotFound = fmt.Errorf("%w: user profile", api.ErrNotFound)
	ErrSelfReferral    = fmt.Errorf("%w: a user cannot refer themselves", api.ErrValidation)
	ErrEmptyUserID     = fmt.Errorf("%w: user id is required", api.ErrValidation)
)

type Service interface {
	Upsert(ctx context.Context, userID string, req UpsertRequest) (*Profile, error)
	Get(ctx context.Context, userID string) (*Profile, error)
	// Email resolves the notification address of a user.
	Email(ctx context.Context, userID string) (string, error)
}

type service struct {
	db   sqlx.ExtContext
	repo Repository
}

func NewService(db sqlx.ExtContext, repo Repository) Service {
	return &service{db: db, repo: repo}
}

func (s *service) Upsert(ctx context.Context, userID string, req UpsertRequest) (*Profile, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if req.ReferrerID != nil && *req.ReferrerID == userID {
		return nil, ErrSelfReferral
	}

	p := &Profile{UserID: userID, Email: req.Email, ReferrerID: req.ReferrerID}
	if err := s.repo.Upsert(ctx, s.db, p); err != nil {
		return nil, err
	}

	logger.Info("user profile synced", "user_id", userID, "has_referrer", p.ReferrerID != nil)
	return p, nil
}

func (s *service) Get(ctx context.Context, userID string) (*Profile, error) {
	return s.repo.Get(ctx, s.db, userID)
}

func (s *service) Email(ctx context.Context, userID string) (string, error) {
	p, err := s.repo.Get(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if p.Email == "" {
		return "", fmt.Errorf("%w: no email on file for user %s", api.ErrNotFound, userID)
	}
	return p.Email, nil
}
