package service

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/domain/engineer"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
)

// LedgerEntry is a transaction to append to an engineer wallet
type LedgerEntry struct {
	TransactionID string
	Type          types.TransactionType
	Amount        int64
	OrderID       string
	CouponCode    string
	ReferenceID   string
	Description   string
}

func (e LedgerEntry) Validate() error {
	if e.TransactionID == "" {
		return ierr.NewError("transaction_id is required").
			WithHint("Ledger postings need a deterministic transaction id").
			Mark(ierr.ErrValidation)
	}
	if err := e.Type.Validate(); err != nil {
		return err
	}
	if e.Amount == 0 {
		return ierr.NewError("amount must not be zero").
			WithHint("Zero amount transactions are not recorded").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// WalletLedger is the append-only transaction log of engineer wallets. The wallet
// balance is a projection of the log floored at zero.
type WalletLedger interface {
	// Post appends the entry and returns the new balance. A second post with the
	// same transaction id fails with ErrAlreadyExists and returns the current balance.
	Post(ctx context.Context, engineerID string, entry LedgerEntry) (int64, error)
	// Balance recomputes the balance from the transaction log
	Balance(ctx context.Context, engineerID string) (int64, error)
	// Rebuild rewrites the stored projection from the log and returns it
	Rebuild(ctx context.Context, engineerID string) (int64, error)
	Transactions(ctx context.Context, engineerID string) ([]*engineer.Transaction, error)
}

type walletLedger struct {
	ServiceParams
}

func NewWalletLedger(params ServiceParams) WalletLedger {
	return &walletLedger{
		ServiceParams: params,
	}
}

func (s *walletLedger) Post(ctx context.Context, engineerID string, entry LedgerEntry) (int64, error) {
	if engineerID == "" {
		return 0, ierr.NewError("engineer_id is required").
			WithHint("Engineer ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	var balance int64
	var duplicate bool
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		profile, err := s.EngineerRepo.LockProfile(txCtx, engineerID)
		if err != nil {
			return err
		}

		if _, err := s.EngineerRepo.GetTransaction(txCtx, entry.TransactionID); err == nil {
			duplicate = true
			balance = profile.WalletBalance
			return nil
		} else if !ierr.IsNotFound(err) {
			return err
		}

		txns, err := s.EngineerRepo.ListTransactions(txCtx, engineerID)
		if err != nil {
			return err
		}
		balance = engineer.ApplyToBalance(engineer.ReplayBalance(txns), entry.Amount)

		txn := &engineer.Transaction{
			ID:           entry.TransactionID,
			TenantID:     types.GetTenantID(txCtx),
			EngineerID:   engineerID,
			Sequence:     profile.Version,
			Type:         entry.Type,
			Amount:       entry.Amount,
			BalanceAfter: balance,
			OrderID:      entry.OrderID,
			CouponCode:   entry.CouponCode,
			ReferenceID:  entry.ReferenceID,
			Description:  entry.Description,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.EngineerRepo.CreateTransaction(txCtx, txn); err != nil {
			return err
		}
		return s.EngineerRepo.UpdateBalance(txCtx, engineerID, balance)
	})
	if err != nil {
		return 0, err
	}

	if duplicate {
		s.Logger.Debugw("ledger transaction already posted",
			"engineer_id", engineerID,
			"transaction_id", entry.TransactionID,
		)
		return balance, ierr.NewError("transaction already posted").
			WithHintf("Transaction %s was already posted", entry.TransactionID).
			WithReportableDetails(map[string]any{
				"engineer_id":    engineerID,
				"transaction_id": entry.TransactionID,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	s.Logger.Infow("posted ledger transaction",
		"engineer_id", engineerID,
		"transaction_id", entry.TransactionID,
		"type", entry.Type,
		"amount", entry.Amount,
		"balance", balance,
	)
	return balance, nil
}

func (s *walletLedger) Balance(ctx context.Context, engineerID string) (int64, error) {
	txns, err := s.EngineerRepo.ListTransactions(ctx, engineerID)
	if err != nil {
		return 0, err
	}
	return engineer.ReplayBalance(txns), nil
}

func (s *walletLedger) Rebuild(ctx context.Context, engineerID string) (int64, error) {
	var balance int64
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.EngineerRepo.LockProfile(txCtx, engineerID); err != nil {
			return err
		}
		txns, err := s.EngineerRepo.ListTransactions(txCtx, engineerID)
		if err != nil {
			return err
		}
		balance = engineer.ReplayBalance(txns)
		return s.EngineerRepo.UpdateBalance(txCtx, engineerID, balance)
	})
	if err != nil {
		return 0, err
	}

	s.Logger.Infow("rebuilt engineer wallet balance", "engineer_id", engineerID, "balance", balance)
	return balance, nil
}

func (s *walletLedger) Transactions(ctx context.Context, engineerID string) ([]*engineer.Transaction, error) {
	return s.EngineerRepo.ListTransactions(ctx, engineerID)
}
