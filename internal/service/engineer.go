package service

import (
	"context"

	"github.com/flexprice/couponengine/internal/api/dto"
	"github.com/flexprice/couponengine/internal/domain/engineer"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/samber/lo"
)

// EngineerService exposes engineer wallets
type EngineerService interface {
	GetEngineerWallet(ctx context.Context, engineerID string) (*dto.EngineerWalletResponse, error)
	RebuildBalance(ctx context.Context, engineerID string) (*dto.RebuildBalanceResponse, error)
}

type engineerService struct {
	ServiceParams
	ledger WalletLedger
}

func NewEngineerService(params ServiceParams) EngineerService {
	return &engineerService{
		ServiceParams: params,
		ledger:        NewWalletLedger(params),
	}
}

func (s *engineerService) GetEngineerWallet(ctx context.Context, engineerID string) (*dto.EngineerWalletResponse, error) {
	if engineerID == "" {
		return nil, ierr.NewError("engineer_id is required").
			WithHint("Engineer ID is required").
			Mark(ierr.ErrValidation)
	}

	profile, err := s.EngineerRepo.GetProfile(ctx, engineerID)
	if err != nil {
		return nil, err
	}

	txns, err := s.ledger.Transactions(ctx, engineerID)
	if err != nil {
		return nil, err
	}

	return &dto.EngineerWalletResponse{
		EngineerID:    profile.UserID,
		WalletBalance: profile.WalletBalance,
		UpdatedAt:     &profile.UpdatedAt,
		Transactions: lo.Map(txns, func(t *engineer.Transaction, _ int) *dto.EngineerTransactionResponse {
			return dto.FromEngineerTransaction(t)
		}),
	}, nil
}

func (s *engineerService) RebuildBalance(ctx context.Context, engineerID string) (*dto.RebuildBalanceResponse, error) {
	profile, err := s.EngineerRepo.GetProfile(ctx, engineerID)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.Rebuild(ctx, engineerID)
	if err != nil {
		return nil, err
	}

	if balance != profile.WalletBalance {
		s.Logger.Warnw("engineer wallet projection drifted from ledger",
			"engineer_id", engineerID,
			"stored_balance", profile.WalletBalance,
			"ledger_balance", balance,
		)
	}

	return &dto.RebuildBalanceResponse{
		EngineerID:      engineerID,
		PreviousBalance: profile.WalletBalance,
		WalletBalance:   balance,
	}, nil
}
