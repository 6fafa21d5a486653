package payments

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

// Service exposes read access to payment transactions.
type Service interface {
	GetTransaction(ctx context.Context, principal pkgAuth.Principal, transactionID string) (*TransactionDTO, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	return &service{repo: repo}, nil
}

// GetTransaction returns the transaction when the caller owns it or is an
// admin.
func (s *service) GetTransaction(ctx context.Context, principal pkgAuth.Principal, transactionID string) (*TransactionDTO, error) {
	txn, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	if !principal.CanAccessOwnerResource(txn.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to another user")
	}
	return FromModel(txn), nil
}
