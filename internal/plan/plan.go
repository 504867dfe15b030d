// Package plan resolves paid plan durations from the layered configuration
// records and normalizes plan names typed by admins.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"keyadmin/entity"
	"keyadmin/lib/sl"
)

const (
	DefaultMonthDays    = 30
	DefaultLifetimeDays = 365
)

// MaxDays caps every configured duration (about a century) so that the
// millisecond arithmetic of expiry times cannot overflow.
const MaxDays = 36500

// Durations are day counts per paid plan. All values are positive.
type Durations struct {
	MonthDays      int `json:"monthDays"`
	ThreeMonthDays int `json:"threeMonthDays"`
	SixMonthDays   int `json:"sixMonthDays"`
	LifetimeDays   int `json:"lifetimeDays"`
}

func Defaults() Durations {
	return Durations{
		MonthDays:      DefaultMonthDays,
		ThreeMonthDays: DefaultMonthDays * 3,
		SixMonthDays:   DefaultMonthDays * 6,
		LifetimeDays:   DefaultLifetimeDays,
	}
}

// Days returns the duration of p, falling back to the monthly value.
func (d Durations) Days(p entity.Plan) int {
	switch p {
	case entity.PlanThreeMonth:
		return d.ThreeMonthDays
	case entity.PlanSixMonth:
		return d.SixMonthDays
	case entity.PlanLifetime:
		return d.LifetimeDays
	default:
		return d.MonthDays
	}
}

// Field names seen in configuration records over time, in lookup order.
var (
	monthAliases      = []string{"monthDays", "paidMonthDays", "month", "monthTTL"}
	lifetimeAliases   = []string{"lifetimeDays", "paidLifetimeDays", "lifetime", "lifetimeTTL"}
	threeMonthAliases = []string{"threeMonthDays", "paid3MonthDays", "3monthDays", "3MonthDays"}
	sixMonthAliases   = []string{"sixMonthDays", "paid6MonthDays", "6monthDays", "6MonthDays"}
)

// Reader is the subset of the store the resolver needs.
type Reader interface {
	HasRemote() bool
	Get(ctx context.Context, key string) (json.RawMessage, bool)
}

type Resolver struct {
	store Reader
	ns    entity.Namespace
	log   *slog.Logger
}

func NewResolver(store Reader, ns entity.Namespace, log *slog.Logger) *Resolver {
	return &Resolver{
		store: store,
		ns:    ns,
		log:   log.With(sl.Module("plan")),
	}
}

// Resolve reads the plan configuration and fills gaps from defaults. It does
// no I/O when the store has no remote backend.
func (r *Resolver) Resolve(ctx context.Context) Durations {
	d := Defaults()
	if !r.store.HasRemote() {
		return d
	}

	cfg, key := r.config(ctx)
	if cfg == nil {
		return d
	}

	if v, ok := positive(cfg, monthAliases); ok {
		d.MonthDays = v
	}
	if v, ok := positive(cfg, lifetimeAliases); ok {
		d.LifetimeDays = v
	}
	d.ThreeMonthDays = min(d.MonthDays*3, MaxDays)
	if v, ok := positive(cfg, threeMonthAliases); ok {
		d.ThreeMonthDays = v
	}
	d.SixMonthDays = min(d.MonthDays*6, MaxDays)
	if v, ok := positive(cfg, sixMonthAliases); ok {
		d.SixMonthDays = v
	}

	r.log.Debug("plan durations",
		sl.Key(key),
		slog.Int("month", d.MonthDays),
		slog.Int("three_month", d.ThreeMonthDays),
		slog.Int("six_month", d.SixMonthDays),
		slog.Int("lifetime", d.LifetimeDays),
	)
	return d
}

// config returns the plan record: the new key as-is, or the legacy global
// config's paidPlanConfig section, or the legacy record itself.
func (r *Resolver) config(ctx context.Context) (entity.Object, string) {
	if raw, ok := r.store.Get(ctx, r.ns.PlanConfig()); ok {
		if obj, ok := entity.DecodeObject(raw); ok {
			return obj, r.ns.PlanConfig()
		}
		r.log.Warn("plan config is not an object", sl.Key(r.ns.PlanConfig()))
	}

	raw, ok := r.store.Get(ctx, r.ns.LegacyGlobalConfig())
	if !ok {
		return nil, ""
	}
	obj, ok := entity.DecodeObject(raw)
	if !ok {
		return nil, ""
	}
	if nested, ok := obj["paidPlanConfig"]; ok {
		if sub, ok := entity.DecodeObject(nested); ok {
			return sub, r.ns.LegacyGlobalConfig()
		}
	}
	return obj, r.ns.LegacyGlobalConfig()
}

// positive takes the first alias that is present, even when its value is
// unusable, and parses it like parseInt. Non-positive results are rejected,
// large ones are capped at MaxDays.
func positive(cfg entity.Object, aliases []string) (int, bool) {
	raw, ok := cfg.Present(aliases...)
	if !ok {
		return 0, false
	}
	n, ok := parseInt(raw)
	if !ok || n <= 0 {
		return 0, false
	}
	return min(n, MaxDays), true
}

// parseInt reads a leading decimal integer from a JSON number or string:
// 10.7 → 10, "45 days" → 45, "abc" → false.
func parseInt(raw json.RawMessage) (int, bool) {
	var text string
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		text = num.String()
	} else if err = json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}

	text = strings.TrimLeft(text, " \t\n\r")
	end := 0
	if end < len(text) && (text[end] == '-' || text[end] == '+') {
		end++
	}
	digits := end
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	// out of range values come back saturated
	n, err := strconv.Atoi(text[:end])
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return n, true
}

// Normalize maps admin input to a plan. Empty and unknown values become the
// monthly plan rather than an error.
func Normalize(raw string) entity.Plan {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "3month", "three", "3":
		return entity.PlanThreeMonth
	case "6month", "six", "6":
		return entity.PlanSixMonth
	case "lifetime":
		return entity.PlanLifetime
	default:
		return entity.PlanMonth
	}
}
