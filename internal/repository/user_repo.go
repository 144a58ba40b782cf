package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"zenyx/internal/models"
	"zenyx/internal/store"
)

// UserRepository handles user records.
type UserRepository struct {
	kv   store.KV
	keys Keys
}

func NewUserRepository(kv store.KV, keys Keys) *UserRepository {
	return &UserRepository{kv: kv, keys: keys}
}

// FindByID returns models.ErrNotFound for unknown users.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return getJSON[models.User](ctx, r.kv, r.keys.User(id))
}

// Touch creates the user on first contact or refreshes the profile fields,
// keeping wallet, bots and referral data.
func (r *UserRepository) Touch(ctx context.Context, id int64, username, firstName, lastName string) (*models.User, error) {
	return updateJSON(ctx, r.kv, r.keys.User(id), func(u *models.User) (*models.User, error) {
		if u == nil {
			u = &models.User{ID: id, CreatedAt: time.Now(), Balance: decimal.Zero, TotalRevenue: decimal.Zero}
		}
		u.Username = username
		u.FirstName = firstName
		u.LastName = lastName
		return u, nil
	})
}

// Update mutates an existing user atomically. fn may return an error to abort.
func (r *UserRepository) Update(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	return updateJSON(ctx, r.kv, r.keys.User(id), func(u *models.User) (*models.User, error) {
		if u == nil {
			return nil, models.ErrNotFound
		}
		if err := fn(u); err != nil {
			return nil, err
		}
		return u, nil
	})
}

// RecordSale appends the sale, credits its commission and bumps the owner's stats
// in one atomic write. Unknown owners get a fresh record so the credit is not lost.
func (r *UserRepository) RecordSale(ctx context.Context, ownerID int64, sale models.Sale) (*models.User, error) {
	return updateJSON(ctx, r.kv, r.keys.User(ownerID), func(u *models.User) (*models.User, error) {
		if u == nil {
			u = &models.User{ID: ownerID, CreatedAt: time.Now(), Balance: decimal.Zero, TotalRevenue: decimal.Zero}
		}
		u.Sales = append(u.Sales, sale)
		u.Balance = u.Balance.Add(sale.Commission)
		u.TotalSales++
		u.TotalRevenue = u.TotalRevenue.Add(sale.Amount)
		return u, nil
	})
}

// FindAll returns every user. Used by admin stats and cron jobs.
func (r *UserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	return listJSON[models.User](ctx, r.kv, r.keys.Users())
}
