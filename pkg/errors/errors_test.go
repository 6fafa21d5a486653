package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestEveryCodeHasTransportContract(t *testing.T) {
	for code, meta := range codeTable {
		if meta.HTTPStatus < 400 || meta.PublicMessage == "" {
			t.Fatalf("%s has incomplete metadata %+v", code, meta)
		}
		if meta.Retryable != (meta.HTTPStatus >= 500) {
			t.Fatalf("%s: only server-side codes are retryable", code)
		}
	}
	checks := map[Code]int{
		CodeValidation:     http.StatusBadRequest,
		CodeAmountMismatch: http.StatusUnprocessableEntity,
		CodeCardDeclined:   http.StatusPaymentRequired,
		CodeStateConflict:  http.StatusUnprocessableEntity,
		CodeIdempotency:    http.StatusConflict,
		CodeRateLimit:      http.StatusTooManyRequests,
		CodeDependency:     http.StatusServiceUnavailable,
	}
	for code, status := range checks {
		if got := MetadataFor(code).HTTPStatus; got != status {
			t.Fatalf("%s: expected %d got %d", code, status, got)
		}
	}
	if MetadataFor("NOPE") != MetadataFor(CodeInternal) {
		t.Fatal("unknown codes must fall back to internal")
	}
}

func TestErrorMessageAndChain(t *testing.T) {
	plain := New(CodeCardDeclined, "luhn check failed").WithDetails(map[string]any{"field": "cardNumber"})
	if plain.Error() != "CARD_DECLINED: luhn check failed" || plain.Details() == nil {
		t.Fatalf("unexpected error %q details %v", plain.Error(), plain.Details())
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "reserve stock")
	if wrapped.Error() != "CONFLICT: reserve stock: boom" || !stdErrors.Is(wrapped, cause) {
		t.Fatalf("unexpected wrap %q", wrapped.Error())
	}
	if Wrap(CodeNotFound, nil, "missing").Unwrap() != nil {
		t.Fatal("nil cause must stay nil")
	}

	var nilErr *Error
	if nilErr.Code() != CodeInternal || nilErr.Error() != "" || nilErr.WithDetails(1) != nil {
		t.Fatal("nil receiver must be safe")
	}
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeForbidden, "admins only"))
	if As(err) == nil || !IsCode(err, CodeForbidden) || IsCode(err, CodeNotFound) {
		t.Fatalf("classification failed for %v", err)
	}
	if As(nil) != nil || As(stdErrors.New("plain")) != nil || IsCode(nil, CodeInternal) {
		t.Fatal("untyped errors carry no code")
	}
}

func TestFromStore(t *testing.T) {
	typed := New(CodeNotFound, "missing")
	cases := []struct {
		name string
		in   error
		want Code
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), CodeDependency},
		{"canceled", context.Canceled, CodeDependency},
		{"typed", typed, CodeNotFound},
		{"other", stdErrors.New("disk"), CodeInternal},
	}
	for _, tc := range cases {
		if got := FromStore(tc.in, "load cart"); !IsCode(got, tc.want) {
			t.Fatalf("%s: expected %s got %v", tc.name, tc.want, got)
		}
	}
	if FromStore(typed, "load") != error(typed) || FromStore(nil, "noop") != nil {
		t.Fatal("typed errors pass through and nil stays nil")
	}
}

func TestDumpReadsBothDrivers(t *testing.T) {
	viaPgx := Dump(Wrap(CodeInternal, &pgconn.PgError{Code: "23505", ConstraintName: "orders_invoice_number_key", ColumnName: "invoice_number"}, "persist invoice"))
	if viaPgx.PGCode != "23505" || viaPgx.PGConstraint != "orders_invoice_number_key" || viaPgx.PGColumn != "invoice_number" {
		t.Fatalf("unexpected pgx dump %+v", viaPgx)
	}
	if viaPgx.Code != CodeInternal || !viaPgx.Retryable || len(viaPgx.Chain) != 2 {
		t.Fatalf("unexpected typed fields %+v", viaPgx)
	}

	viaPq := Dump(fmt.Errorf("seed: %w", &pq.Error{Code: "23503", Table: "order_items"}))
	if viaPq.PGCode != "23503" || viaPq.PGTable != "order_items" || viaPq.Code != "" {
		t.Fatalf("unexpected pq dump %+v", viaPq)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatal("nil dumps empty")
	}
}
