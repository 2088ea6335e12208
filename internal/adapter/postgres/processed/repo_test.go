package processed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres/processed"
	"github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres/testhelper"
	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

func TestRepo_Mark_DuplicateKey(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	repo := processed.New(pool)
	ctx := context.Background()

	key := uuid.New()
	now := time.Now().UTC()

	if err := repo.Mark(ctx, key, "PatientRegistered", now); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	err := repo.Mark(ctx, key, "PatientRegistered", now)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("second Mark: want ErrAlreadyExists, got %v", err)
	}
}

func TestRepo_Mark_DistinctKeys(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	repo := processed.New(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := repo.Mark(ctx, uuid.New(), "PatientStatusChanged", now); err != nil {
			t.Fatalf("Mark %d: %v", i, err)
		}
	}
}
