package router

import (
	"testing"
	"time"

	"github.com/scoobystack/scooby-engine/internal/models"
)

func testRouter() *Router {
	policies := DefaultPolicies(
		models.TierPolicy{Budget: 3 * time.Second},
		models.TierPolicy{Budget: 5 * time.Second},
		models.TierPolicy{Budget: 45 * time.Second},
	)
	return New([]string{"payments", "auth"}, []string{"fatal", "panic", "data loss"}, policies, nil)
}

func TestClassify(t *testing.T) {
	r := testRouter()

	cases := []struct {
		name string
		req  models.IncidentRequest
		want models.Tier
	}{
		{
			name: "explicit critical hint wins",
			req:  models.IncidentRequest{Service: "blog", SeverityHint: "critical"},
			want: models.TierCritical,
		},
		{
			name: "p0 maps to critical",
			req:  models.IncidentRequest{SeverityHint: "P0"},
			want: models.TierCritical,
		},
		{
			name: "p1 maps to high",
			req:  models.IncidentRequest{SeverityHint: "p1"},
			want: models.TierHigh,
		},
		{
			name: "critical service identifier",
			req:  models.IncidentRequest{Service: "Payments", LogLines: []string{"ERROR timeout"}},
			want: models.TierCritical,
		},
		{
			name: "fatal lexicon match",
			req:  models.IncidentRequest{Service: "blog", LogLines: []string{"INFO starting", "PANIC: nil pointer dereference"}},
			want: models.TierHigh,
		},
		{
			name: "no signals defaults to standard",
			req:  models.IncidentRequest{Service: "blog", LogLines: []string{"ERROR timeout"}},
			want: models.TierStandard,
		},
		{
			name: "unknown hint falls through to signals",
			req:  models.IncidentRequest{SeverityHint: "urgent-ish", Service: "auth"},
			want: models.TierCritical,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Classify(tc.req); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDefaultPoliciesShape(t *testing.T) {
	r := testRouter()

	critical := r.Policy(models.TierCritical)
	if critical.AllowApproximate || critical.SyncOracle || critical.AsyncOracle {
		t.Fatalf("critical strategy must avoid approximate cache and oracle on the request path")
	}

	high := r.Policy(models.TierHigh)
	if !high.AllowApproximate || high.SyncOracle || !high.AsyncOracle {
		t.Fatalf("high strategy must use approximate cache and async enrichment only")
	}

	standard := r.Policy(models.TierStandard)
	if !standard.AllowApproximate || !standard.SyncOracle {
		t.Fatalf("standard strategy must allow approximate cache and synchronous oracle")
	}

	if critical.Budget != 3*time.Second || standard.Budget != 45*time.Second {
		t.Fatalf("budgets must pass through from configuration")
	}
}
