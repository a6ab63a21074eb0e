// Package address is the narrow boundary to the address book: resolve an
// owned address by id, or persist an inline one supplied at checkout.
package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the address does not exist.
	ErrNotFound = errors.New("address not found")
	// ErrForbidden is returned when the address belongs to another identity.
	ErrForbidden = errors.New("address belongs to another identity")
)

// Address is a shipping destination. UserID is Nil for guest-supplied
// addresses.
type Address struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Phone       string
	FullAddress string
	Country     string
	District    string
	PostalCode  string
	Email       string
	IsDefault   bool
}

// MissingFieldsError lists required inline-address fields that were empty.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required address fields: %s", strings.Join(e.Fields, ", "))
}

// Validate checks the required fields of an inline address.
func (a *Address) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"phone", a.Phone},
		{"full_address", a.FullAddress},
		{"country", a.Country},
		{"district", a.District},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// Repository persists and resolves addresses.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Address, error)
	Create(ctx context.Context, a *Address) error
}
