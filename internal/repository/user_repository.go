package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

// UserRepositoryInterface defines methods used by service
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type UserRepository struct {
	DB *sql.DB
}

// GetByID fetches a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `
        SELECT id, username, telegram_username, balance, created_at
        FROM users
        WHERE id = $1
    `
	var u model.User
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.TelegramUsername, &u.Balance, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewUserNotFound(id)
		}
		return nil, err
	}
	return &u, nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
