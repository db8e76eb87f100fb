package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

// BookInput carries the caller-supplied fields of a book. On Add a nil
// TotalCopies means one copy; on Update it leaves the counts alone.
type BookInput struct {
	Title           string
	Author          string
	ISBN            string
	Publisher       *string
	PublicationYear *int
	Category        *string
	TotalCopies     *int
}

func (in BookInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case strings.TrimSpace(in.Author) == "":
		return fmt.Errorf("%w: author is required", ErrInvalidInput)
	case strings.TrimSpace(in.ISBN) == "":
		return fmt.Errorf("%w: isbn is required", ErrInvalidInput)
	case in.TotalCopies != nil && *in.TotalCopies < 0:
		return fmt.Errorf("%w: total_copies must not be negative", ErrInvalidInput)
	}
	return nil
}

// BookService manages the catalogue.
type BookService interface {
	Add(ctx context.Context, in BookInput) (*models.Book, error)
	List(ctx context.Context) ([]models.Book, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Book, error)
	Update(ctx context.Context, id uuid.UUID, in BookInput) (*models.Book, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, term string) ([]models.Book, error)
}

type bookService struct {
	base
	bookRepo repositories.BookRepository
}

func newBookService(b base, bookRepo repositories.BookRepository) BookService {
	return &bookService{base: b, bookRepo: bookRepo}
}

// Add inserts a book with every copy available.
func (s *bookService) Add(ctx context.Context, in BookInput) (*models.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	total := 1
	if in.TotalCopies != nil {
		total = *in.TotalCopies
	}
	book := &models.Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Publisher:       in.Publisher,
		PublicationYear: in.PublicationYear,
		Category:        in.Category,
		TotalCopies:     total,
		AvailableCopies: total,
		CreatedAt:       s.now(),
	}

	db, cancel := s.session(ctx)
	defer cancel()
	if err := s.bookRepo.Create(db, book); err != nil {
		log.Printf("[ERROR] AddBook: failed to create book %q: %v", in.Title, err)
		return nil, storeError("add book", err)
	}
	log.Printf("[INFO] AddBook: created book %q (id=%s) with %d copies", book.Title, book.ID, total)
	return book, nil
}

// List returns all books, newest first.
func (s *bookService) List(ctx context.Context) ([]models.Book, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	books, err := s.bookRepo.List(db)
	return books, storeError("list books", err)
}

func (s *bookService) Get(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	book, err := s.bookRepo.GetByID(db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, storeError("get book", err)
	}
	return book, nil
}

// Update rewrites the book's metadata. When TotalCopies is supplied and
// differs from the stored value, available_copies moves by the same signed
// delta; it is not recomputed from outstanding loans.
func (s *bookService) Update(ctx context.Context, id uuid.UUID, in BookInput) (*models.Book, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	db, cancel := s.session(ctx)
	defer cancel()

	var updated *models.Book
	err := db.Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		if in.TotalCopies != nil && *in.TotalCopies != book.TotalCopies {
			delta := *in.TotalCopies - book.TotalCopies
			book.AvailableCopies += delta
			book.TotalCopies = *in.TotalCopies
			if book.AvailableCopies < 0 || book.AvailableCopies > book.TotalCopies {
				log.Printf("[WARN] UpdateBook: book %s availability %d outside [0, %d] after delta %+d",
					id, book.AvailableCopies, book.TotalCopies, delta)
			}
		}
		book.Title = in.Title
		book.Author = in.Author
		book.ISBN = in.ISBN
		book.Publisher = in.Publisher
		book.PublicationYear = in.PublicationYear
		book.Category = in.Category

		if err := s.bookRepo.Update(tx, book); err != nil {
			log.Printf("[ERROR] UpdateBook: failed to update book %s: %v", id, err)
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, storeError("update book", err)
	}
	log.Printf("[INFO] UpdateBook: updated book %s (total=%d, available=%d)", id, updated.TotalCopies, updated.AvailableCopies)
	return updated, nil
}

// Delete removes the book whether or not transactions still reference it.
func (s *bookService) Delete(ctx context.Context, id uuid.UUID) error {
	db, cancel := s.session(ctx)
	defer cancel()
	n, err := s.bookRepo.Delete(db, id)
	if err != nil {
		log.Printf("[ERROR] DeleteBook: failed to delete book %s: %v", id, err)
		return storeError("delete book", err)
	}
	log.Printf("[INFO] DeleteBook: book %s deleted (%d rows)", id, n)
	return nil
}

// Search matches term as a substring of title, author, isbn or category.
func (s *bookService) Search(ctx context.Context, term string) ([]models.Book, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	books, err := s.bookRepo.Search(db, term, s.opts.SearchCaseInsensitive)
	if err != nil {
		return nil, storeError("search books", err)
	}
	if books == nil {
		books = []models.Book{}
	}
	return books, nil
}
