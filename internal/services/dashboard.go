package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

// DashboardStats summarises the state of the library.
type DashboardStats struct {
	TotalBooks         int64                       `json:"total_books"`
	TotalMembers       int64                       `json:"total_members"`
	IssuedBooks        int64                       `json:"issued_books"`
	OverdueBooks       int64                       `json:"overdue_books"`
	RecentTransactions []models.TransactionDetail  `json:"recent_transactions"`
	Overdue            []models.OverdueTransaction `json:"overdue"`
}

type DashboardService interface {
	Stats(ctx context.Context) (*DashboardStats, error)
}

type dashboardService struct {
	base
	bookRepo   repositories.BookRepository
	memberRepo repositories.MemberRepository
	txnRepo    repositories.TransactionRepository
}

func newDashboardService(
	b base,
	bookRepo repositories.BookRepository,
	memberRepo repositories.MemberRepository,
	txnRepo repositories.TransactionRepository,
) DashboardService {
	return &dashboardService{
		base:       b,
		bookRepo:   bookRepo,
		memberRepo: memberRepo,
		txnRepo:    txnRepo,
	}
}

// Stats gathers the counters and lists concurrently; the first failure
// cancels the rest.
func (s *dashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(db.Statement.Context)
	db = db.WithContext(gctx)
	today := s.today()

	var stats DashboardStats
	g.Go(func() (err error) {
		stats.TotalBooks, err = s.bookRepo.Count(db)
		return storeError("count books", err)
	})
	g.Go(func() (err error) {
		stats.TotalMembers, err = s.memberRepo.Count(db)
		return storeError("count members", err)
	})
	g.Go(func() (err error) {
		stats.IssuedBooks, err = s.txnRepo.CountByStatus(db, models.TransactionStatusIssued)
		return storeError("count issued", err)
	})
	g.Go(func() (err error) {
		stats.OverdueBooks, err = s.txnRepo.CountOverdue(db, today)
		return storeError("count overdue", err)
	})
	g.Go(func() (err error) {
		stats.RecentTransactions, err = s.txnRepo.ListDetailed(db, RecentTransactionsLimit)
		return storeError("list recent transactions", err)
	})
	g.Go(func() (err error) {
		stats.Overdue, err = overdue(db, s.txnRepo, today)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.RecentTransactions == nil {
		stats.RecentTransactions = []models.TransactionDetail{}
	}
	return &stats, nil
}
