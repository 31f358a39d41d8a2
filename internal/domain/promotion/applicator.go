package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Reason classifies why a coupon application failed.
type Reason string

const (
	ReasonNotFound       Reason = "coupon_code_not_found"
	ReasonAlreadyApplied Reason = "coupon_code_already_applied"
	ReasonMaxUsage       Reason = "coupon_code_max_usage"
	ReasonExpired        Reason = "coupon_code_expired"
	ReasonUnknownError   Reason = "coupon_code_unknown_error"
)

// Message returns the user-facing text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNotFound:
		return "coupon code not found"
	case ReasonAlreadyApplied:
		return "coupon code already applied"
	case ReasonMaxUsage:
		return "coupon code max usage"
	case ReasonExpired:
		return "coupon code expired"
	default:
		return "coupon code unknown error"
	}
}

// Outcome is the ephemeral result of one coupon-apply attempt. Coupon
// failures are expected and user-facing; they are reported here as typed
// reasons, never raised as faults. Err carries the underlying cause for
// unknown errors only, for logging.
type Outcome struct {
	Success   bool
	Reason    Reason
	Promotion *Promotion
	Err       error
}

func success(p *Promotion) Outcome { return Outcome{Success: true, Promotion: p} }

func failure(r Reason, err error) Outcome { return Outcome{Reason: r, Err: err} }

// Resyncer recomputes an order's totals after activation mutates it.
type Resyncer interface {
	Resync(ctx context.Context, o *order.Order) error
}

// Applicator applies coupon codes to orders: it resolves the code to a
// promotion, checks re-application, usage and validity constraints, runs
// the promotion's actions against the order and resynchronizes totals.
type Applicator struct {
	promotions Repository
	resync     Resyncer
	now        func() time.Time
}

// NewApplicator creates an Applicator.
func NewApplicator(promotions Repository, resync Resyncer) *Applicator {
	return &Applicator{promotions: promotions, resync: resync, now: time.Now}
}

// Apply runs one coupon-apply attempt against the order. On any failure the
// order is left exactly as it was; on success its totals are already
// recomputed and the promotion's usage counter incremented.
func (a *Applicator) Apply(ctx context.Context, o *order.Order, code string) Outcome {
	p, err := a.promotions.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return failure(ReasonNotFound, nil)
		}
		return failure(ReasonUnknownError, errors.Wrap(err, "lookup promotion"))
	}
	// A promotion without actions cannot grant anything; the original
	// system reports this as an unknown code.
	if len(p.Actions) == 0 {
		return failure(ReasonNotFound, nil)
	}

	if o.HasPromotion(p.ID) {
		return failure(ReasonAlreadyApplied, nil)
	}
	if p.UsageLimitReached() {
		return failure(ReasonMaxUsage, nil)
	}
	if !p.Active(a.now()) {
		return failure(ReasonExpired, nil)
	}

	restore := o.Snapshot()

	performed := false
	for _, act := range p.Actions {
		done, err := act.Perform(ctx, o)
		if err != nil {
			restore()
			return failure(ReasonUnknownError, errors.Wrap(err, "perform action"))
		}
		performed = performed || done
	}
	if !performed {
		restore()
		return failure(ReasonUnknownError, errors.New("promotion had no effect"))
	}

	if err := a.resync.Resync(ctx, o); err != nil {
		restore()
		return failure(ReasonUnknownError, errors.Wrap(err, "resync order"))
	}

	// Usage is counted on success only.
	if err := a.promotions.IncrementUses(ctx, p.ID); err != nil {
		restore()
		if errors.Is(err, ErrUsageLimit) {
			return failure(ReasonMaxUsage, nil)
		}
		return failure(ReasonUnknownError, errors.Wrap(err, "increment uses"))
	}
	p.Uses++

	return success(p)
}
