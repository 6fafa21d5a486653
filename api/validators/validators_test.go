package validators

import (
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

type addItemBody struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"product_id":"4b1f8f6e-4f5c-4a36-9a43-4f1f7c2d1a10","quantity":2}`},
		{name: "unknown field", body: `{"product_id":"4b1f8f6e-4f5c-4a36-9a43-4f1f7c2d1a10","quantity":2,"price":1}`, wantErr: true},
		{name: "malformed", body: `{"product_id":`, wantErr: true},
		{name: "quantity below min", body: `{"product_id":"4b1f8f6e-4f5c-4a36-9a43-4f1f7c2d1a10","quantity":0}`, wantErr: true, field: "quantity"},
		{name: "missing product", body: `{"quantity":1}`, wantErr: true, field: "product_id"},
		{name: "trailing object", body: `{"product_id":"4b1f8f6e-4f5c-4a36-9a43-4f1f7c2d1a10","quantity":2}{}`, wantErr: true},
		{name: "oversized", body: `{"product_id":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(tc.body))
			var dest addItemBody
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field == "" {
				return
			}
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			if !ok {
				t.Fatalf("expected field details, got %#v", pkgerrors.As(err).Details())
			}
			if _, ok := details[tc.field]; !ok {
				t.Fatalf("expected details for %s, got %v", tc.field, details)
			}
		})
	}
}

func TestFieldMessagesIncludeParams(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(`{"product_id":"nope","quantity":0}`))
	err := DecodeJSONBody(req, &addItemBody{})
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["quantity"] != "must be at least 1" || details["product_id"] != "must be a valid UUID" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/admin/invoices?limit=20&skip=x&big=1000", nil)
	if v, err := ParseQueryInt(req, "limit", 50, 1, 100); err != nil || v != 20 {
		t.Fatalf("expected 20, got %d (%v)", v, err)
	}
	if v, err := ParseQueryInt(req, "missing", 50, 1, 100); err != nil || v != 50 {
		t.Fatalf("expected default, got %d (%v)", v, err)
	}
	if _, err := ParseQueryInt(req, "skip", 0, 0, 100); err == nil {
		t.Fatalf("expected numeric error")
	}
	if _, err := ParseQueryInt(req, "big", 0, 0, 100); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestParseUUIDParam(t *testing.T) {
	if _, err := ParseUUIDParam("not-a-uuid", "id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseUUIDParam(" 4b1f8f6e-4f5c-4a36-9a43-4f1f7c2d1a10 ", "id"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"ascii", "  paracetamol  ", 4, "para"},
		{"accented", "  José Peña Núñez ", 8, "José Peñ"},
		{"multibyte boundary", "ñññ", 2, "ññ"},
		{"shorter than limit", "María", 10, "María"},
		{"no limit", " Ana ", 0, "Ana"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeString(tc.input, tc.max)
			if got != tc.want {
				t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("result %q is not valid UTF-8", got)
			}
		})
	}
}
