package request

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
)

func intPtr(v int) *int { return &v }

func TestNew_Defaults(t *testing.T) {
	r, err := New(Params{Query: "brain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Query() != "brain" {
		t.Errorf("Query() = %q", r.Query())
	}
	if r.Rows() != DefaultRows {
		t.Errorf("Rows() = %d, want %d", r.Rows(), DefaultRows)
	}
	if _, ok := r.Start(); ok {
		t.Error("Start() should be unset")
	}
	if _, ok := r.Model(); ok {
		t.Error("Model() should be unset")
	}
	if _, ok := r.Filters(); ok {
		t.Error("Filters() should be unset")
	}
}

func strPtr(s string) *string { return &s }

func TestNew_ExplicitEmptyModelIsSupplied(t *testing.T) {
	r, err := New(Params{Query: "q", Model: strPtr("")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := r.Model()
	if !ok || m != "" {
		t.Errorf("Model() = %q, %v; want empty and supplied", m, ok)
	}
}

func TestNew_ExplicitValues(t *testing.T) {
	r, err := New(Params{
		Query:   "q",
		Rows:    intPtr(25),
		Start:   intPtr(0),
		Model:   strPtr("SITE_SEARCH"),
		Filters: []string{"type:article"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Rows() != 25 {
		t.Errorf("Rows() = %d", r.Rows())
	}
	if start, ok := r.Start(); !ok || start != 0 {
		t.Errorf("Start() = %d, %v", start, ok)
	}
	if m, ok := r.Model(); !ok || m != "SITE_SEARCH" {
		t.Errorf("Model() = %q, %v", m, ok)
	}
	if fq, ok := r.Filters(); !ok || len(fq) != 1 || fq[0] != "type:article" {
		t.Errorf("Filters() = %v, %v", fq, ok)
	}
}

func TestNew_EmptyFiltersKept(t *testing.T) {
	r, err := New(Params{Query: "q", Filters: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fq, ok := r.Filters()
	if !ok || len(fq) != 0 {
		t.Errorf("Filters() = %v, %v; want empty, supplied", fq, ok)
	}
}

func TestNew_FiltersCopied(t *testing.T) {
	in := []string{"a:b"}
	r, _ := New(Params{Query: "q", Filters: in})
	in[0] = "mutated"
	if fq, _ := r.Filters(); fq[0] != "a:b" {
		t.Errorf("Filters() aliased caller slice: %v", fq)
	}
}

func TestNew_Rows(t *testing.T) {
	tests := []struct {
		rows    int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{50, false},
		{100, false},
		{101, true},
		{-3, true},
	}
	for _, tc := range tests {
		_, err := New(Params{Query: "q", Rows: intPtr(tc.rows)})
		if (err != nil) != tc.wantErr {
			t.Errorf("rows=%d: err = %v, wantErr %v", tc.rows, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, fault.ErrValidation) {
			t.Errorf("rows=%d: expected validation fault, got %v", tc.rows, err)
		}
	}
}

func TestNew_EmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   "} {
		_, err := New(Params{Query: q})
		if err == nil {
			t.Fatalf("expected error for %q", q)
		}
		if fault.CategoryOf(err) != fault.Validation {
			t.Errorf("category = %q", fault.CategoryOf(err))
		}
		if !strings.Contains(err.Error(), "required") {
			t.Errorf("error = %q", err)
		}
	}
}

func TestNew_QueryTooLong(t *testing.T) {
	_, err := New(Params{Query: strings.Repeat("x", MaxQueryLength+1)})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "too long") {
		t.Errorf("error = %q", err)
	}
}

func TestNew_NegativeStart(t *testing.T) {
	_, err := New(Params{Query: "q", Start: intPtr(-1)})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
}
