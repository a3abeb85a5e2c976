// Package plan resolves per-user plan limits for quota-enforced collections.
package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hyperengineering/larder/internal/store"
)

// unlimitedValue is how an unlimited plan is spelled in JSON and YAML.
const unlimitedValue = "unlimited"

// Limit is either a maximum record count or unlimited.
type Limit struct {
	Max       int
	Unlimited bool
}

// Unlimited returns a limit that never truncates.
func Unlimited() Limit {
	return Limit{Unlimited: true}
}

// Max returns a limit of n records.
func Max(n int) Limit {
	return Limit{Max: n}
}

// FromStored converts a stored plan_limit column; -1 means unlimited.
func FromStored(v int64) Limit {
	if v < 0 {
		return Unlimited()
	}
	return Max(int(v))
}

// Stored returns the plan_limit column value for l.
func (l Limit) Stored() int64 {
	if l.Unlimited {
		return -1
	}
	return int64(l.Max)
}

// Exceeded reports whether n records are over the limit.
func (l Limit) Exceeded(n int) bool {
	return !l.Unlimited && n > l.Max
}

func (l Limit) String() string {
	if l.Unlimited {
		return unlimitedValue
	}
	return strconv.Itoa(l.Max)
}

// MarshalJSON encodes the limit as a number or "unlimited".
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.Unlimited {
		return json.Marshal(unlimitedValue)
	}
	return json.Marshal(l.Max)
}

// UnmarshalJSON accepts a non-negative number, -1 or "unlimited".
func (l *Limit) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != unlimitedValue {
			return fmt.Errorf("plan limit: unknown value %q", s)
		}
		*l = Unlimited()
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("plan limit: %w", err)
	}
	if n < -1 {
		return fmt.Errorf("plan limit: %d is negative", n)
	}
	*l = FromStored(n)
	return nil
}

// Lookup returns the plan limit for a user's collection.
type Lookup interface {
	Limit(ctx context.Context, userID, collection string) (Limit, error)
}

// OverrideStore reads per-user limit overrides.
type OverrideStore interface {
	GetPlanLimit(ctx context.Context, userID, collection string) (int64, error)
}

// Resolver looks up per-user overrides and falls back to configured defaults.
// Collections with neither are unlimited.
type Resolver struct {
	overrides OverrideStore
	defaults  map[string]Limit
}

// NewResolver creates a Resolver. overrides may be nil.
func NewResolver(overrides OverrideStore, defaults map[string]Limit) *Resolver {
	d := make(map[string]Limit, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Resolver{overrides: overrides, defaults: d}
}

// Limit implements Lookup.
func (r *Resolver) Limit(ctx context.Context, userID, collection string) (Limit, error) {
	if r.overrides != nil {
		v, err := r.overrides.GetPlanLimit(ctx, userID, collection)
		if err == nil {
			return FromStored(v), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Limit{}, fmt.Errorf("lookup plan override: %w", err)
		}
	}
	if l, ok := r.defaults[collection]; ok {
		return l, nil
	}
	return Unlimited(), nil
}

// DefaultsFromConfig converts configured limits (-1 = unlimited).
func DefaultsFromConfig(limits map[string]int) map[string]Limit {
	out := make(map[string]Limit, len(limits))
	for collection, v := range limits {
		out[collection] = FromStored(int64(v))
	}
	return out
}
