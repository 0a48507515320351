package gates_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/learnhub/internal/app/system/gates"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fixedCounter struct {
	n   int64
	err error
}

func (c fixedCounter) CountByTenant(ctx context.Context, tenantID primitive.ObjectID) (int64, error) {
	return c.n, c.err
}

func TestFeatureEnabled_ToggleWinsOverPlan(t *testing.T) {
	tests := []struct {
		name     string
		plan     models.Plan
		features map[string]bool
		flag     string
		want     bool
	}{
		{"free plan default off", models.PlanFree, nil, gates.FeatureGamification, false},
		{"team plan default on", models.PlanTeam, nil, gates.FeatureGamification, true},
		{"explicit on beats plan", models.PlanFree, map[string]bool{gates.FeatureRadar: true}, gates.FeatureRadar, true},
		{"explicit off beats plan", models.PlanEnterprise, map[string]bool{gates.FeatureSSO: false}, gates.FeatureSSO, false},
		{"unknown flag off", models.PlanEnterprise, nil, "teleport", false},
		{"unknown plan treated as free", models.Plan("GOLD"), nil, gates.FeatureEvents, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn := models.Tenant{Plan: tt.plan, Features: tt.features}
			if got := gates.FeatureEnabled(tn, tt.flag); got != tt.want {
				t.Errorf("FeatureEnabled(%s) = %v, want %v", tt.flag, got, tt.want)
			}
		})
	}
}

func TestEffectiveFeatures(t *testing.T) {
	got := gates.EffectiveFeatures(models.Tenant{Plan: models.PlanTeam, Features: map[string]bool{gates.FeatureEvents: false}})
	if len(got) != len(gates.KnownFeatures) {
		t.Errorf("expected every known flag, got %d", len(got))
	}
	if !got[gates.FeatureGamification] || got[gates.FeatureEvents] {
		t.Errorf("unexpected features %v", got)
	}
}

func TestSeatLimit(t *testing.T) {
	if got := gates.SeatLimit(models.Tenant{Plan: models.PlanTeam}); got != 50 {
		t.Errorf("expected TEAM default 50, got %d", got)
	}
	if got := gates.SeatLimit(models.Tenant{Plan: models.PlanTeam, SeatLimit: 75}); got != 75 {
		t.Errorf("expected explicit 75, got %d", got)
	}
	if got := gates.SeatLimit(models.Tenant{Plan: models.PlanEnterprise}); got != 0 {
		t.Errorf("expected ENTERPRISE unlimited, got %d", got)
	}
}

func TestCheckSeatLimit(t *testing.T) {
	tn := models.Tenant{ID: primitive.NewObjectID(), Plan: models.PlanFree}

	if err := gates.New(fixedCounter{n: 9}).CheckSeatLimit(context.Background(), tn); err != nil {
		t.Errorf("expected free seat, got %v", err)
	}
	if err := gates.New(fixedCounter{n: 10}).CheckSeatLimit(context.Background(), tn); !errors.Is(err, gates.ErrSeatLimitReached) {
		t.Errorf("expected ErrSeatLimitReached, got %v", err)
	}

	boom := errors.New("boom")
	if err := gates.New(fixedCounter{err: boom}).CheckSeatLimit(context.Background(), tn); !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}

	ent := models.Tenant{ID: primitive.NewObjectID(), Plan: models.PlanEnterprise}
	if err := gates.New(fixedCounter{n: 1 << 20}).CheckSeatLimit(context.Background(), ent); err != nil {
		t.Errorf("expected ENTERPRISE to be unlimited, got %v", err)
	}
}

func TestConfirmSeats(t *testing.T) {
	tn := models.Tenant{ID: primitive.NewObjectID(), Plan: models.PlanFree}

	// The new member is already counted, so a full tenant is fine.
	if err := gates.New(fixedCounter{n: 10}).ConfirmSeats(context.Background(), tn); err != nil {
		t.Errorf("expected a tenant at its limit to pass, got %v", err)
	}
	if err := gates.New(fixedCounter{n: 11}).ConfirmSeats(context.Background(), tn); !errors.Is(err, gates.ErrSeatLimitReached) {
		t.Errorf("expected ErrSeatLimitReached past the limit, got %v", err)
	}
	ent := models.Tenant{ID: primitive.NewObjectID(), Plan: models.PlanEnterprise}
	if err := gates.New(fixedCounter{n: 1 << 20}).ConfirmSeats(context.Background(), ent); err != nil {
		t.Errorf("expected ENTERPRISE to be unlimited, got %v", err)
	}
}

func TestXPFor(t *testing.T) {
	tn := models.Tenant{Gamification: models.Gamification{XPRules: map[string]int{"module_completed": 40, "quiz_passed": 0}}}
	if got := gates.XPFor(tn, "module_completed"); got != 40 {
		t.Errorf("expected tenant rule 40, got %d", got)
	}
	if got := gates.XPFor(tn, "quiz_passed"); got != 0 {
		t.Errorf("expected explicit zero to win, got %d", got)
	}
	if got := gates.XPFor(tn, "event_attended"); got != gates.DefaultXP["event_attended"] {
		t.Errorf("expected built-in default, got %d", got)
	}
	if got := gates.XPFor(tn, "unknown"); got != 0 {
		t.Errorf("expected 0 for unknown action, got %d", got)
	}
}

func TestRankFor(t *testing.T) {
	tn := models.Tenant{Gamification: models.Gamification{Ranks: []models.Rank{
		{Name: "Bronze", MinXP: 100},
		{Name: "Silver", MinXP: 500},
		{Name: "Gold", MinXP: 1000},
	}}}
	tests := []struct {
		xp    int
		want  string
		found bool
	}{
		{0, "", false},
		{100, "Bronze", true},
		{499, "Bronze", true},
		{500, "Silver", true},
		{5000, "Gold", true},
	}
	for _, tt := range tests {
		r, found := gates.RankFor(tn, tt.xp)
		if found != tt.found || r.Name != tt.want {
			t.Errorf("RankFor(%d) = %q,%v; want %q,%v", tt.xp, r.Name, found, tt.want, tt.found)
		}
	}

	r, found := gates.RankFor(models.Tenant{}, 300)
	if !found || r.Name != "Explorer" {
		t.Errorf("expected default rank Explorer, got %q", r.Name)
	}
}

func TestValidateGamification(t *testing.T) {
	tests := []struct {
		name    string
		g       models.Gamification
		wantErr bool
	}{
		{"empty ok", models.Gamification{}, false},
		{"valid", models.Gamification{
			XPRules: map[string]int{"module_completed": 10},
			Ranks:   []models.Rank{{Name: "A", MinXP: 0}, {Name: "B", MinXP: 10}},
		}, false},
		{"negative xp", models.Gamification{XPRules: map[string]int{"x": -1}}, true},
		{"ranks not ascending", models.Gamification{Ranks: []models.Rank{{Name: "A", MinXP: 10}, {Name: "B", MinXP: 10}}}, true},
		{"unnamed rank", models.Gamification{Ranks: []models.Rank{{MinXP: 0}}}, true},
		{"negative vote threshold", models.Gamification{VoteThresholds: models.VoteThresholds{RadarFeature: -2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gates.ValidateGamification(tt.g)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGamification() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequireFeature(t *testing.T) {
	h := gates.RequireFeature(gates.FeatureRadar, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		tenant models.Tenant
		want   int
	}{
		{"enabled by plan", models.Tenant{Plan: models.PlanBusiness}, http.StatusOK},
		{"disabled by plan", models.Tenant{Plan: models.PlanTeam}, http.StatusForbidden},
		{"enabled by toggle", models.Tenant{Plan: models.PlanFree, Features: map[string]bool{gates.FeatureRadar: true}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tenantctx.WithTestContext(httptest.NewRequest("GET", "/api/radar", nil), &tenantctx.TenantContext{Tenant: tt.tenant})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
