package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/brainbites/progression-engine/internal/domain/shared"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization", &pgconn.PgError{Code: codeSerializationFailure}, shared.ErrConcurrentModification},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: codeDeadlockDetected}), shared.ErrConcurrentModification},
		{"lock timeout", &pgconn.PgError{Code: codeLockNotAvailable}, shared.ErrConcurrentModification},
		{"deadline", context.DeadlineExceeded, shared.ErrTimeout},
		{"closed pool", ErrConnectionClosed, shared.ErrServiceUnavailable},
		{"domain error untouched", shared.ErrInsufficientXP, shared.ErrInsufficientXP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate("Op", tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.NoError(t, translate("Op", nil))
	assert.False(t, shared.IsRetryable(translate("Op", errors.New("syntax error"))))
	assert.True(t, shared.IsRetryable(translate("Op", &pgconn.PgError{Code: codeSerializationFailure})))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
}
