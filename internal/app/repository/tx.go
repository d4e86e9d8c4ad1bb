package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repos bundles the entity repositories bound to one transactional scope.
// Mutations on an entity group (one affiliate link, or one affiliate's
// commissions together with the seller's ledger rows) must all go through
// the same Repos instance inside a single TxManager.Do call.
type Repos struct {
	Links       AffiliateLinkRepository
	Commissions CommissionRepository
	Movements   BalanceMovementRepository
	Balances    SellerBalanceRepository
}

// TxManager runs a function inside one database transaction. The function
// receives repositories bound to that transaction; returning an error rolls
// everything back.
type TxManager interface {
	Do(ctx context.Context, fn func(r Repos) error) error
}

type gormTxManager struct {
	db *gorm.DB
}

// NewTxManager returns a TxManager backed by gorm transactions.
func NewTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

func (m *gormTxManager) Do(ctx context.Context, fn func(r Repos) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Repos{
			Links:       NewAffiliateLinkRepository(tx),
			Commissions: NewCommissionRepository(tx),
			Movements:   NewBalanceMovementRepository(tx),
			Balances:    NewSellerBalanceRepository(tx),
		})
	})
}
