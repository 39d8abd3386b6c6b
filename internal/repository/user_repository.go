package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// UserRepo provides data access to the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, COALESCE(email,''), COALESCE(password_hash,''), COALESCE(wallet_address,''),
        name, role, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.WalletAddress,
		&u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}

// Create inserts an email/password user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, name, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, name, role) VALUES (?,?,?,?)",
		email, hash, name, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// FindOrCreateByWallet returns the user owning the given wallet
// address, creating a CUSTOMER account on first login.  Addresses are
// normalized to lower case before lookup and insert.  The duplicate-key
// retry covers two first logins racing on the same address: the loser
// of the insert re-reads the row the winner created.
func (r *UserRepo) FindOrCreateByWallet(ctx context.Context, address string) (model.User, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE wallet_address=? LIMIT 1", address)
	u, err := scanUser(row)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return model.User{}, err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users (wallet_address, name, role) VALUES (?,?,?)",
		address, address, model.RoleCustomer)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "1062") {
		return model.User{}, err
	}
	row = r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE wallet_address=? LIMIT 1", address)
	return scanUser(row)
}
