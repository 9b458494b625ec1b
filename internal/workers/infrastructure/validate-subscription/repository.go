// internal/workers/infrastructure/validate-subscription/repository.go
package validatesubscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CustomerResolver maps an application user to a billing customer.
type CustomerResolver interface {
	ResolveCustomerID(ctx context.Context, userID string) (string, error)
}

type SQLCustomerResolver struct {
	db *sql.DB
}

func NewSQLCustomerResolver(db *sql.DB) *SQLCustomerResolver {
	return &SQLCustomerResolver{db: db}
}

// ResolveCustomerID returns "" when the user has no billing customer.
func (r *SQLCustomerResolver) ResolveCustomerID(ctx context.Context, userID string) (string, error) {
	var customerID string
	query := `SELECT customer_id FROM billing_customers WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve billing customer: %w", err)
	}
	return customerID, nil
}
