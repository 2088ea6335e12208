package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, domain.ErrAlreadyExists},
		{"fk violation", &pgconn.PgError{Code: "23503"}, domain.ErrNotFound},
		{"check violation", &pgconn.PgError{Code: "23514"}, domain.ErrValidation},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
		{"canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MapError(tt.in, "patient", id)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("want nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("MapError(%v) = %v, want wrapped %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapError_UnknownErrorWrapped(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")
	got := MapError(base, "build", uuid.New())
	if !errors.Is(got, base) {
		t.Errorf("unknown error must stay unwrappable: %v", got)
	}
}
