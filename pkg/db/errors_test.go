package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestIsLockConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pgx lock timeout", &pgconn.PgError{Code: "55P03"}, true},
		{"pgx deadlock wrapped", fmt.Errorf("reserve: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"pq serialization", &pq.Error{Code: "40001"}, true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"sqlite busy behind typed error", pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("database is locked"), "create order"), true},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsLockConflict(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "payment_transactions_reference_key"}
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "payment_transactions_reference_key"))
	assert.False(t, IsUniqueViolation(err, "orders_pkey"))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: payment_transactions.reference"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}
