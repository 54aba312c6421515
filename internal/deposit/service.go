// Package deposit hands out provider deposit addresses and caches them per
// user and chain.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wtcoin/internal/api"
	"wtcoin/internal/logger"
	"wtcoin/internal/provider"

	"github.com/jmoiron/sqlx"
)

var ErrAddressNotFound = fmt.Errorf("%w: deposit address", api.ErrNotFound)

type AddressProvider interface {
	CreateDepositAddress(ctx context.Context, referenceID, chain string) (*provider.DepositAddress, error)
}

type Service struct {
	db       sqlx.ExtContext
	repo     Repository
	provider AddressProvider
}

func NewService(db sqlx.ExtContext, repo Repository, p AddressProvider) *Service {
	return &Service{db: db, repo: repo, provider: p}
}

// AddressFor returns the stored address or asks the provider for one. The
// provider is idempotent on referenceId, so a race between two requests
// resolves to the same address.
func (s *Service) AddressFor(ctx context.Context, userID, chain string) (*Address, error) {
	chain = strings.ToUpper(strings.TrimSpace(chain))
	if chain == "" {
		return nil, fmt.Errorf("%w: chain is required", api.ErrValidation)
	}

	a, err := s.repo.Get(ctx, s.db, userID, chain)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAddressNotFound) {
		return nil, err
	}

	pa, err := s.provider.CreateDepositAddress(ctx, userID, chain)
	if err != nil {
		return nil, err
	}
	if pa.Address == "" {
		return nil, fmt.Errorf("%w: provider returned an empty address", api.ErrExternalService)
	}

	a, err = s.repo.Save(ctx, s.db, &Address{UserID: userID, Chain: chain, Address: pa.Address, Memo: pa.Memo})
	if err != nil {
		return nil, err
	}

	logger.Info("deposit address issued", "user_id", userID, "chain", chain)
	return a, nil
}
