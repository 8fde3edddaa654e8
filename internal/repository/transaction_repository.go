package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// TransactionRepositoryImpl implements the TransactionRepository interface
type TransactionRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *infra.PoolRouter) domain.TransactionRepository {
	return &TransactionRepositoryImpl{db: db}
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.Pool().QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return t, nil
}

// GetByUserID retrieves the most recent transactions of a user
func (r *TransactionRepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return collectTransactions(rows)
}

// GetByStatus retrieves transactions in a status, oldest first, for the admin queue
func (r *TransactionRepositoryImpl) GetByStatus(ctx context.Context, status string, limit int) ([]*domain.Transaction, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE $1 = '' OR status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by status: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}
