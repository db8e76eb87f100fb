package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

// TransactionService runs the issue/return workflow and its reports.
type TransactionService interface {
	Issue(ctx context.Context, bookID, memberID uuid.UUID, days int) (*models.Transaction, error)
	Return(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context) ([]models.TransactionDetail, error)
	Overdue(ctx context.Context) ([]models.OverdueTransaction, error)
	LoanPeriodDays() int
}

type transactionService struct {
	base
	bookRepo   repositories.BookRepository
	memberRepo repositories.MemberRepository
	txnRepo    repositories.TransactionRepository
}

func newTransactionService(
	b base,
	bookRepo repositories.BookRepository,
	memberRepo repositories.MemberRepository,
	txnRepo repositories.TransactionRepository,
) TransactionService {
	return &transactionService{
		base:       b,
		bookRepo:   bookRepo,
		memberRepo: memberRepo,
		txnRepo:    txnRepo,
	}
}

// LoanPeriodDays is the loan length applied when the caller gives none.
func (s *transactionService) LoanPeriodDays() int {
	return s.opts.LoanPeriodDays
}

// ─── Issue ────────────────────────────────────────────────────────────────────

// Issue lends one copy of a book to a member for the given number of days.
//
// Steps (all in one transaction):
//  1. Lock the book row (FOR UPDATE) and require a copy to be available.
//  2. Require the member to exist.
//  3. Insert the transaction, due `days` after today.
//  4. Take the copy with a conditional decrement that never goes below zero.
//
// If any step fails nothing is written.
func (s *transactionService) Issue(ctx context.Context, bookID, memberID uuid.UUID, days int) (*models.Transaction, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: loan period must be positive, got %d days", ErrInvalidInput, days)
	}

	db, cancel := s.session(ctx)
	defer cancel()

	var issued *models.Transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[WARN] Issue: book %s does not exist", bookID)
				return ErrBookUnavailable
			}
			return err
		}
		if book.AvailableCopies <= 0 {
			log.Printf("[INFO] Issue: no available copies of book %s", bookID)
			return ErrBookUnavailable
		}

		if _, err := s.memberRepo.GetByID(tx, memberID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		issueDate := s.today()
		txn := &models.Transaction{
			BookID:    bookID,
			MemberID:  memberID,
			IssueDate: issueDate,
			DueDate:   issueDate.AddDate(0, 0, days),
			Status:    models.TransactionStatusIssued,
			CreatedAt: s.now(),
		}
		if err := s.txnRepo.Create(tx, txn); err != nil {
			log.Printf("[ERROR] Issue: failed to create transaction for book %s / member %s: %v", bookID, memberID, err)
			return err
		}

		n, err := s.bookRepo.DecrementAvailable(tx, bookID)
		if err != nil {
			log.Printf("[ERROR] Issue: failed to decrement available_copies of book %s: %v", bookID, err)
			return err
		}
		if n == 0 {
			return ErrBookUnavailable
		}
		issued = txn
		return nil
	})
	if err != nil {
		s.opts.Metrics.Rejected("issue", reason(err))
		if !isDomainError(err) {
			log.Printf("[ERROR] Issue: transaction failed for book %s / member %s: %v", bookID, memberID, err)
		}
		return nil, storeError("issue book", err)
	}

	s.opts.Metrics.Issued()
	log.Printf("[INFO] Issue: transaction %s created for member %s / book %s, due %s",
		issued.ID, memberID, bookID, issued.DueDate.Format("2006-01-02"))
	return issued, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// Return closes an issued transaction.
//
// Steps (all in one transaction):
//  1. Lock the transaction row (FOR UPDATE).
//  2. Guard against double-return.
//  3. Calculate the fine (see calculateFine).
//  4. Mark the transaction returned.
//  5. Give the copy back to the book.
func (s *transactionService) Return(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var returned *models.Transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		txn, err := s.txnRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if txn.Status == models.TransactionStatusReturned {
			log.Printf("[WARN] Return: transaction %s already returned", id)
			return ErrAlreadyReturned
		}

		returnDate := s.today()
		fine := calculateFine(txn.DueDate, returnDate, s.opts.FinePerDay)

		n, err := s.txnRepo.MarkReturned(tx, id, returnDate, fine)
		if err != nil {
			log.Printf("[ERROR] Return: failed to mark transaction %s as returned: %v", id, err)
			return err
		}
		if n == 0 {
			return ErrAlreadyReturned
		}

		if err := s.bookRepo.IncrementAvailable(tx, txn.BookID); err != nil {
			log.Printf("[ERROR] Return: failed to increment available_copies of book %s: %v", txn.BookID, err)
			return err
		}

		txn.ReturnDate = &returnDate
		txn.FineAmount = fine
		txn.Status = models.TransactionStatusReturned
		returned = txn
		return nil
	})
	if err != nil {
		s.opts.Metrics.Rejected("return", reason(err))
		if !isDomainError(err) {
			log.Printf("[ERROR] Return: transaction failed for %s: %v", id, err)
		}
		return nil, storeError("return book", err)
	}

	s.opts.Metrics.Returned(daysBetween(returned.IssueDate, *returned.ReturnDate), returned.FineAmount)
	log.Printf("[INFO] Return: transaction %s returned (book=%s, member=%s), fine=%d",
		id, returned.BookID, returned.MemberID, returned.FineAmount)
	return returned, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// List returns every transaction with its book title and member name,
// newest first.
func (s *transactionService) List(ctx context.Context) ([]models.TransactionDetail, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	rows, err := s.txnRepo.ListDetailed(db, 0)
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	if rows == nil {
		rows = []models.TransactionDetail{}
	}
	return rows, nil
}

// Overdue returns issued transactions due before today, most overdue first.
func (s *transactionService) Overdue(ctx context.Context) ([]models.OverdueTransaction, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	return overdue(db, s.txnRepo, s.today())
}

func overdue(db *gorm.DB, txnRepo repositories.TransactionRepository, today time.Time) ([]models.OverdueTransaction, error) {
	rows, err := txnRepo.ListOverdue(db, today)
	if err != nil {
		return nil, storeError("list overdue transactions", err)
	}
	out := make([]models.OverdueTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.OverdueTransaction{
			TransactionDetail: row,
			DaysOverdue:       daysBetween(row.DueDate, today),
		})
	}
	return out, nil
}

// reason turns an issue/return failure into a metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrBookUnavailable):
		return "unavailable"
	case errors.Is(err, ErrAlreadyReturned):
		return "already_returned"
	case IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "store"
	}
}
