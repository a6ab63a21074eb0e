package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/almacart/commerce/internal/domain/address"
)

const (
	getAddressByIDSQL = `SELECT id, user_id, name, phone, full_address, country, district, postal_code, email, is_default
		FROM addresses WHERE id = $1`

	createAddressSQL = `INSERT INTO addresses (id, user_id, name, phone, full_address, country, district, postal_code, email, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	q querier
}

// NewAddressRepository returns an AddressRepository over the given querier.
func NewAddressRepository(q querier) *AddressRepository {
	return &AddressRepository{q: q}
}

// GetByID returns an address by id or address.ErrNotFound.
func (r *AddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*address.Address, error) {
	rows, err := r.q.Query(ctx, getAddressByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	return &a, nil
}

// Create persists a new address.
func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	_, err := r.q.Exec(ctx, createAddressSQL,
		a.ID, nullUUID(a.UserID), a.Name, a.Phone, a.FullAddress,
		a.Country, a.District, a.PostalCode, a.Email, a.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("creating address: %w", err)
	}
	return nil
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var (
		a      address.Address
		userID *uuid.UUID
	)
	err := row.Scan(&a.ID, &userID, &a.Name, &a.Phone, &a.FullAddress,
		&a.Country, &a.District, &a.PostalCode, &a.Email, &a.IsDefault)
	if userID != nil {
		a.UserID = *userID
	}
	return a, err
}
