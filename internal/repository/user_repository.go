package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// UserRepositoryImpl implements the UserRepository interface
type UserRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *infra.PoolRouter) domain.UserRepository {
	return &UserRepositoryImpl{db: db}
}

// Create creates a new user
func (r *UserRepositoryImpl) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	err := r.db.Write(func(pool *pgxpool.Pool) error {
		_, err := pool.Exec(ctx, query,
			user.ID,
			user.Username,
			user.PasswordHash,
			user.WalletAddress,
			user.Balance,
			user.ReservedBalance,
			user.IsAdmin,
			user.IsSupportAdmin,
			user.CreatedAt,
			user.UpdatedAt,
		)
		return err
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.NewValidationError("username %s is already taken", user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := scanUser(r.db.Pool().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return user, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepositoryImpl) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := scanUser(r.db.Pool().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, notFound(err, "user", username)
	}
	return user, nil
}

// GetAll retrieves users ordered by signup time
func (r *UserRepositoryImpl) GetAll(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
