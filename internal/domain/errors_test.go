package domain_test

import (
	"errors"
	"testing"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

func TestErrorTaxonomy_ValidationKinds(t *testing.T) {
	cause := errors.New("expected exactly 5 fields")
	tests := []struct {
		name string
		err  error
	}{
		{"field", &domain.ValidationError{Field: "name", Message: "is required"}},
		{"type", &domain.UnknownWorkflowTypeError{Type: "bogus"}},
		{"schedule", &domain.InvalidScheduleError{Expr: "0 3 * *", Err: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, domain.ErrValidation) {
				t.Errorf("errors.Is(%v, ErrValidation) = false, want true", tt.err)
			}
			if errors.Is(tt.err, domain.ErrNotFound) {
				t.Errorf("errors.Is(%v, ErrNotFound) = true, want false", tt.err)
			}
		})
	}
}

func TestInvalidScheduleError_KeepsCause(t *testing.T) {
	cause := errors.New("expected exactly 5 fields")
	err := error(&domain.InvalidScheduleError{Expr: "0 3 * *", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("InvalidScheduleError does not unwrap to its cause")
	}

	var schedErr *domain.InvalidScheduleError
	if !errors.As(err, &schedErr) || schedErr.Expr != "0 3 * *" {
		t.Errorf("errors.As() = %v, want expression preserved", schedErr)
	}
}

func TestJSONBMap_ScanAndValue(t *testing.T) {
	var m domain.JSONBMap
	if err := m.Scan([]byte(`{"url":"https://example.com","limit":5}`)); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if m["url"] != "https://example.com" {
		t.Errorf("m[url] = %v, want https://example.com", m["url"])
	}

	var empty domain.JSONBMap
	v, err := empty.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if string(v.([]byte)) != "{}" {
		t.Errorf("Value() of empty map = %s, want {}", v)
	}

	if err := m.Scan(42); err == nil {
		t.Error("Scan(int) error = nil, want unsupported type")
	}
}

func TestJSONValue_NullRoundTrip(t *testing.T) {
	var j domain.JSONValue
	if err := j.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error = %v", err)
	}
	v, err := j.Value()
	if err != nil || v != nil {
		t.Errorf("Value() = %v, %v; want nil, nil", v, err)
	}
}

func TestRecordedContent_CloneIsIndependent(t *testing.T) {
	orig := domain.RecordedContent{Title: "a", Keywords: []string{"go"}, Metadata: map[string]any{"k": 1}}
	clone := orig.Clone()
	clone.Keywords[0] = "rust"
	clone.Metadata["k"] = 2

	if orig.Keywords[0] != "go" || orig.Metadata["k"] != 1 {
		t.Errorf("original mutated through clone: %+v", orig)
	}
}
