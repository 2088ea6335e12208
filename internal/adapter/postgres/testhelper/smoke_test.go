package testhelper

import (
	"context"
	"testing"
)

func TestSetupTestDB_Smoke(t *testing.T) {
	pool := SetupTestDB(t)

	p := SeedPatient(t, pool)

	// Verify patient exists in DB via SELECT.
	var screeningNumber string
	err := pool.QueryRow(
		context.Background(),
		`SELECT screening_number FROM patients WHERE id = $1`,
		p.ID,
	).Scan(&screeningNumber)
	if err != nil {
		t.Fatalf("expected patient in DB, got error: %v", err)
	}

	if screeningNumber != p.ScreeningNumber {
		t.Fatalf("expected screening number %q, got %q", p.ScreeningNumber, screeningNumber)
	}
}
