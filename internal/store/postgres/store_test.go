package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"finance-assistant/internal/core"
)

type retryableErr struct{ safe bool }

func (e retryableErr) Error() string { return "conn closed before send" }
func (e retryableErr) SafeToRetry() bool { return e.safe }

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"no rows", pgx.ErrNoRows, core.IsNotFound},
		{"unique invoice number", &pgconn.PgError{Code: "23505", ConstraintName: "invoices_user_number_key"},
			func(err error) bool { return errors.Is(err, core.ErrDuplicateInvoiceNumber) }},
		{"unique other", &pgconn.PgError{Code: "23505"}, core.IsConflict},
		{"check violation", &pgconn.PgError{Code: "23514", ConstraintName: "invoices_total_check"}, core.IsValidation},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, core.IsTransient},
		{"safe to retry", fmt.Errorf("send: %w", retryableErr{safe: true}), core.IsTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(mapError(tt.err, "invoice")))
		})
	}

	assert.NoError(t, mapError(nil, "invoice"))
	assert.False(t, core.IsTransient(mapError(retryableErr{safe: false}, "invoice")))
	assert.False(t, core.IsTransient(mapError(errors.New("syntax error at or near"), "invoice")))
}
