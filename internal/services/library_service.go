package services

import (
	"context"
	"time"

	"github.com/juju/clock"
	"gorm.io/gorm"

	"librarydesk/internal/metrics"
	"librarydesk/internal/repositories"
)

// ─── Circulation Defaults ─────────────────────────────────────────────────────

const (
	// DefaultLoanPeriodDays is the loan length used when Options leaves it unset.
	DefaultLoanPeriodDays = 14

	// DefaultFinePerDay is the fine (in currency units) charged per day overdue.
	DefaultFinePerDay = 2

	// RecentTransactionsLimit is how many transactions the dashboard shows.
	RecentTransactionsLimit = 5
)

// Options tunes the services built by NewLibrary. Zero values fall back to
// the defaults above, the wall clock and no query deadline.
type Options struct {
	Clock                 clock.Clock
	QueryTimeout          time.Duration
	LoanPeriodDays        int
	FinePerDay            int
	SearchCaseInsensitive bool
	Metrics               *metrics.Collector
}

// Library groups the application services handed to the HTTP layer.
type Library struct {
	Books        BookService
	Members      MemberService
	Transactions TransactionService
	Dashboard    DashboardService
}

// NewLibrary wires up all repositories and services on top of db.
func NewLibrary(db *gorm.DB, opts Options) *Library {
	base := newBase(db, opts)

	bookRepo := repositories.NewBookRepository(db)
	memberRepo := repositories.NewMemberRepository(db)
	txnRepo := repositories.NewTransactionRepository(db)

	return &Library{
		Books:        newBookService(base, bookRepo),
		Members:      newMemberService(base, memberRepo),
		Transactions: newTransactionService(base, bookRepo, memberRepo, txnRepo),
		Dashboard:    newDashboardService(base, bookRepo, memberRepo, txnRepo),
	}
}

// base carries what every service needs: the handle, the clock and the
// per-operation deadline.
type base struct {
	db      *gorm.DB
	clock   clock.Clock
	timeout time.Duration
	opts    Options
}

func newBase(db *gorm.DB, opts Options) base {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.LoanPeriodDays <= 0 {
		opts.LoanPeriodDays = DefaultLoanPeriodDays
	}
	if opts.FinePerDay <= 0 {
		opts.FinePerDay = DefaultFinePerDay
	}
	return base{db: db, clock: opts.Clock, timeout: opts.QueryTimeout, opts: opts}
}

// session returns a handle bound to a context that expires after the
// configured query timeout. The cancel func must always be called.
func (b base) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if b.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		return b.db.WithContext(ctx), cancel
	}
	ctx, cancel := context.WithCancel(ctx)
	return b.db.WithContext(ctx), cancel
}

func (b base) now() time.Time {
	return b.clock.Now().UTC()
}

// today is the current calendar date at midnight UTC.
func (b base) today() time.Time {
	return dateOf(b.clock.Now())
}
