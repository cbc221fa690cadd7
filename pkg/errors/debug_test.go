package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpCarriesCodeAndPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "payment_transactions_one_success_per_order",
		TableName:      "payment_transactions",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert payment: %w", pgErr), "record payment")

	dump := Dump(err)
	if dump.Code != CodeConflict || dump.Retryable {
		t.Fatalf("unexpected code metadata %+v", dump)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "payment_transactions_one_success_per_order" {
		t.Fatalf("postgres diagnostics missing: %+v", dump)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(dump.Chain))
	}

	fields := dump.Fields()
	if fields["pg_table"] != "payment_transactions" || fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatalf("empty postgres values should be omitted")
	}
}

func TestDumpPlainError(t *testing.T) {
	dump := Dump(fmt.Errorf("boom"))
	if dump.Code != "" || dump.PGCode != "" {
		t.Fatalf("plain error should carry no code: %+v", dump)
	}
	if _, ok := dump.Fields()["error_code"]; ok {
		t.Fatalf("error_code should be absent for untyped errors")
	}
	if empty := Dump(nil); empty.TopMessage != "" || empty.Chain != nil {
		t.Fatalf("nil error should dump empty")
	}
}
