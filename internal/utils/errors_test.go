package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindInternal},
		{"typed", E("gateway.call", KindQuotaExceeded, "queue full", nil), KindQuotaExceeded},
		{"wrapped", fmt.Errorf("submit: %w", E("encode", KindEncodingUnavailable, "encoder down", errors.New("dial"))), KindEncodingUnavailable},
		{"legacy", NewAppError("op", "msg", nil), KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := E("oracle.analyze", KindOracleUnavailable, "retries exhausted", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped error to match inner")
	}
	if !IsKind(err, KindOracleUnavailable) {
		t.Fatalf("expected oracle_unavailable kind")
	}
}
