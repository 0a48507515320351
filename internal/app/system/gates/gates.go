// Package gates reads tenant configuration to switch features on and off and
// to enforce plan limits.
//
// Feature flags resolve in two steps: an explicit per-tenant toggle wins,
// otherwise the tenant's plan decides. Seat limits use the tenant's
// seat_limit when set, else the plan default.
package gates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/apierr"
	"github.com/dalemusser/learnhub/internal/app/system/tenantctx"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Feature flags.
const (
	FeatureGamification = "gamification"
	FeatureEvents       = "events"
	FeatureSuggestions  = "suggestions"
	FeatureRadar        = "radar"
	FeatureReports      = "reports"
	FeatureSSO          = "sso"
)

// KnownFeatures lists every flag a tenant may toggle.
var KnownFeatures = []string{
	FeatureGamification,
	FeatureEvents,
	FeatureSuggestions,
	FeatureRadar,
	FeatureReports,
	FeatureSSO,
}

// IsKnownFeature reports whether flag is toggleable.
func IsKnownFeature(flag string) bool {
	for _, f := range KnownFeatures {
		if f == flag {
			return true
		}
	}
	return false
}

// PlanLimits are the defaults a plan carries. Seats == 0 means unlimited.
type PlanLimits struct {
	Seats    int
	Features map[string]bool
}

var planLimits = map[models.Plan]PlanLimits{
	models.PlanFree: {
		Seats:    10,
		Features: map[string]bool{},
	},
	models.PlanTeam: {
		Seats:    50,
		Features: map[string]bool{FeatureGamification: true, FeatureEvents: true},
	},
	models.PlanBusiness: {
		Seats: 500,
		Features: map[string]bool{
			FeatureGamification: true, FeatureEvents: true, FeatureSuggestions: true,
			FeatureRadar: true, FeatureReports: true,
		},
	},
	models.PlanEnterprise: {
		Seats: 0,
		Features: map[string]bool{
			FeatureGamification: true, FeatureEvents: true, FeatureSuggestions: true,
			FeatureRadar: true, FeatureReports: true, FeatureSSO: true,
		},
	},
}

// LimitsFor returns the defaults for plan. Unknown plans get FREE limits.
func LimitsFor(plan models.Plan) PlanLimits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[models.PlanFree]
}

// FeatureEnabled reports whether flag is on for t.
func FeatureEnabled(t models.Tenant, flag string) bool {
	if v, ok := t.Features[flag]; ok {
		return v
	}
	return LimitsFor(t.Plan).Features[flag]
}

// EffectiveFeatures returns the resolved value of every known flag.
func EffectiveFeatures(t models.Tenant) map[string]bool {
	out := make(map[string]bool, len(KnownFeatures))
	for _, f := range KnownFeatures {
		out[f] = FeatureEnabled(t, f)
	}
	return out
}

// SeatLimit returns the tenant's seat cap; 0 means unlimited.
func SeatLimit(t models.Tenant) int {
	if t.SeatLimit > 0 {
		return t.SeatLimit
	}
	return LimitsFor(t.Plan).Seats
}

/*─────────────────────────────────────────────────────────────────────────────*
| Seat gate                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// ErrSeatLimitReached is returned when a tenant has no free seats.
var ErrSeatLimitReached = errors.New("seat limit reached")

// SeatCounter counts the memberships (seats) of a tenant.
type SeatCounter interface {
	CountByTenant(ctx context.Context, tenantID primitive.ObjectID) (int64, error)
}

// Gate checks limits that need a store read.
type Gate struct {
	seats SeatCounter
}

func New(seats SeatCounter) *Gate {
	return &Gate{seats: seats}
}

// CheckSeatLimit returns ErrSeatLimitReached when t has no free seat.
func (g *Gate) CheckSeatLimit(ctx context.Context, t models.Tenant) error {
	return g.seatsAtMost(ctx, t, -1)
}

// ConfirmSeats re-counts after a membership insert and returns
// ErrSeatLimitReached when t now holds more members than it may. Callers
// undo the insert on that error.
func (g *Gate) ConfirmSeats(ctx context.Context, t models.Tenant) error {
	return g.seatsAtMost(ctx, t, 0)
}

// seatsAtMost fails when the member count exceeds the limit plus slack.
func (g *Gate) seatsAtMost(ctx context.Context, t models.Tenant, slack int) error {
	limit := SeatLimit(t)
	if limit == 0 {
		return nil
	}
	used, err := g.seats.CountByTenant(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("count seats: %w", err)
	}
	if used > int64(limit+slack) {
		return ErrSeatLimitReached
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Gamification                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// Built-in XP awards used when a tenant has no rule for an action.
var DefaultXP = map[string]int{
	"module_completed":     100,
	"quiz_passed":          50,
	"event_attended":       75,
	"suggestion_submitted": 10,
	"suggestion_approved":  25,
}

// DefaultRanks apply when a tenant defines none.
var DefaultRanks = []models.Rank{
	{Name: "Rookie", MinXP: 0},
	{Name: "Explorer", MinXP: 250},
	{Name: "Achiever", MinXP: 1000},
	{Name: "Expert", MinXP: 2500},
	{Name: "Master", MinXP: 5000},
}

// XPFor returns the XP awarded for action in t.
func XPFor(t models.Tenant, action string) int {
	if v, ok := t.Gamification.XPRules[action]; ok {
		return v
	}
	return DefaultXP[action]
}

// RankFor returns the highest rank whose threshold is at or below xp.
// found is false when xp is below every threshold.
func RankFor(t models.Tenant, xp int) (models.Rank, bool) {
	ranks := t.Gamification.Ranks
	if len(ranks) == 0 {
		ranks = DefaultRanks
	}
	var (
		best  models.Rank
		found bool
	)
	for _, r := range ranks {
		if r.MinXP <= xp && (!found || r.MinXP > best.MinXP) {
			best, found = r, true
		}
	}
	return best, found
}

// ValidateGamification checks a configuration before it is stored.
func ValidateGamification(g models.Gamification) error {
	actions := make([]string, 0, len(g.XPRules))
	for a := range g.XPRules {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		if a == "" {
			return errors.New("xp rule with empty action")
		}
		if g.XPRules[a] < 0 {
			return fmt.Errorf("xp for %q must not be negative", a)
		}
	}
	for i, r := range g.Ranks {
		if r.Name == "" {
			return fmt.Errorf("rank %d has no name", i+1)
		}
		if r.MinXP < 0 {
			return fmt.Errorf("rank %q threshold must not be negative", r.Name)
		}
		if i > 0 && r.MinXP <= g.Ranks[i-1].MinXP {
			return fmt.Errorf("rank %q threshold must be above %q", r.Name, g.Ranks[i-1].Name)
		}
	}
	if g.VoteThresholds.SuggestionApprove < 0 || g.VoteThresholds.RadarFeature < 0 {
		return errors.New("vote thresholds must not be negative")
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| HTTP                                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// RequireFeature blocks a route unless flag is enabled for the request's
// tenant. It must sit behind tenantctx.Middleware.
func RequireFeature(flag string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := tenantctx.FromRequest(r)
			if !ok {
				apierr.Write(w, logger, fmt.Errorf("gates: feature %s route without tenant context", flag))
				return
			}
			if !FeatureEnabled(tc.Tenant, flag) {
				apierr.Write(w, logger, accesserr.Deny("feature not enabled: "+flag))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
