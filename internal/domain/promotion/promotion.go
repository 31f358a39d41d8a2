package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no promotion matches a coupon code.
var ErrNotFound = errors.New("promotion not found")

// ErrUsageLimit is returned by Repository.IncrementUses when the counter
// cannot be bumped without exceeding the limit. The limit is re-checked at
// increment time so two racing applications cannot both consume the last
// use.
var ErrUsageLimit = errors.New("promotion usage limit reached")

// Promotion groups a set of actions behind an optional coupon code, with a
// global usage limit and a validity window.
type Promotion struct {
	ID         string
	Name       string
	Code       string
	UsageLimit int // 0 means unlimited
	Uses       int
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Actions    []Action
}

// UsageLimitReached reports whether the global usage count has exhausted
// the limit.
func (p *Promotion) UsageLimitReached() bool {
	return p.UsageLimit > 0 && p.Uses >= p.UsageLimit
}

// Active reports whether the promotion may be applied at the given instant.
func (p *Promotion) Active(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return true
}

// Repository provides lookup and usage accounting for promotions. Code
// lookup is case-insensitive.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	// IncrementUses bumps the usage counter, failing when the limit is
	// already exhausted. It is called inside the coupon-apply transaction
	// only; the counter is never ambient mutable state.
	IncrementUses(ctx context.Context, id string) error
}
