package repositories

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarydesk/internal/models"
)

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	Update(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uuid.UUID) (int64, error)
	Search(db *gorm.DB, term string, caseInsensitive bool) ([]models.Book, error)
	DecrementAvailable(db *gorm.DB, id uuid.UUID) (int64, error)
	IncrementAvailable(db *gorm.DB, id uuid.UUID) error
	Count(db *gorm.DB) (int64, error)
}

type MemberRepository interface {
	Create(db *gorm.DB, member *models.Member) error
	List(db *gorm.DB) ([]models.Member, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Member, error)
	Update(db *gorm.DB, member *models.Member) (int64, error)
	Delete(db *gorm.DB, id uuid.UUID) (int64, error)
	Count(db *gorm.DB) (int64, error)
}

type TransactionRepository interface {
	Create(db *gorm.DB, txn *models.Transaction) error
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Transaction, error)
	MarkReturned(db *gorm.DB, id uuid.UUID, returnDate time.Time, fineAmount int) (int64, error)
	ListDetailed(db *gorm.DB, limit int) ([]models.TransactionDetail, error)
	ListOverdue(db *gorm.DB, today time.Time) ([]models.TransactionDetail, error)
	CountByStatus(db *gorm.DB, status models.TransactionStatus) (int64, error)
	CountOverdue(db *gorm.DB, today time.Time) (int64, error)
}

// concrete implementations

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("created_at DESC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// Update writes every mutable column, including nil optionals.
func (r *bookRepository) Update(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", book.ID).
		Updates(map[string]interface{}{
			"title":            book.Title,
			"author":           book.Author,
			"isbn":             book.ISBN,
			"publisher":        book.Publisher,
			"publication_year": book.PublicationYear,
			"category":         book.Category,
			"total_copies":     book.TotalCopies,
			"available_copies": book.AvailableCopies,
		}).Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Book{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

func (r *bookRepository) Search(db *gorm.DB, term string, caseInsensitive bool) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	pattern := "%" + escapeLike(term) + "%"
	cond := `title LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\' OR isbn LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\'`
	if caseInsensitive {
		pattern = strings.ToLower(pattern)
		cond = `LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\' OR LOWER(isbn) LIKE ? ESCAPE '\' OR LOWER(category) LIKE ? ESCAPE '\'`
	}
	var books []models.Book
	err := db.Where(cond, pattern, pattern, pattern, pattern).
		Order("created_at DESC").
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

// DecrementAvailable takes one copy only while at least one is available and
// reports the number of rows changed.
func (r *bookRepository) DecrementAvailable(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies > 0", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies - ?", 1))
	return res.RowsAffected, res.Error
}

func (r *bookRepository) IncrementAvailable(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies + ?", 1)).
		Error
}

func (r *bookRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Book{}).Count(&n).Error
	return n, err
}

type memberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(db *gorm.DB, member *models.Member) error {
	if db == nil {
		db = r.db
	}
	return db.Create(member).Error
}

func (r *memberRepository) List(db *gorm.DB) ([]models.Member, error) {
	if db == nil {
		db = r.db
	}
	var members []models.Member
	if err := db.Order("created_at DESC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *memberRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Member, error) {
	if db == nil {
		db = r.db
	}
	var member models.Member
	if err := db.First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) Update(db *gorm.DB, member *models.Member) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Member{}).
		Where("id = ?", member.ID).
		Updates(map[string]interface{}{
			"name":   member.Name,
			"email":  member.Email,
			"phone":  member.Phone,
			"status": member.Status,
		})
	return res.RowsAffected, res.Error
}

func (r *memberRepository) Delete(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Member{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

func (r *memberRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Member{}).Count(&n).Error
	return n, err
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(db *gorm.DB, txn *models.Transaction) error {
	if db == nil {
		db = r.db
	}
	return db.Create(txn).Error
}

func (r *transactionRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Transaction, error) {
	if db == nil {
		db = r.db
	}
	var txn models.Transaction
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&txn, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// MarkReturned closes an issued transaction. A transaction that is already
// returned is left untouched and reports zero rows.
func (r *transactionRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnDate time.Time, fineAmount int) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusIssued).
		Updates(map[string]interface{}{
			"return_date": returnDate,
			"fine_amount": fineAmount,
			"status":      models.TransactionStatusReturned,
		})
	return res.RowsAffected, res.Error
}

// detailed selects transactions with their book title and member name. Left
// joins keep transactions whose book or member has since been deleted.
func detailed(db *gorm.DB) *gorm.DB {
	return db.Table("transactions AS t").
		Select("t.*, COALESCE(b.title, '') AS book_title, COALESCE(m.name, '') AS member_name").
		Joins("LEFT JOIN books b ON t.book_id = b.id").
		Joins("LEFT JOIN members m ON t.member_id = m.id")
}

// ListDetailed returns the newest transactions first. A limit <= 0 returns all.
func (r *transactionRepository) ListDetailed(db *gorm.DB, limit int) ([]models.TransactionDetail, error) {
	if db == nil {
		db = r.db
	}
	q := detailed(db).Order("t.created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.TransactionDetail
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListOverdue returns issued transactions due strictly before today, most
// overdue first.
func (r *transactionRepository) ListOverdue(db *gorm.DB, today time.Time) ([]models.TransactionDetail, error) {
	if db == nil {
		db = r.db
	}
	var rows []models.TransactionDetail
	err := detailed(db).
		Where("t.due_date < ? AND t.status = ?", today, models.TransactionStatusIssued).
		Order("t.due_date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *transactionRepository) CountByStatus(db *gorm.DB, status models.TransactionStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Transaction{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (r *transactionRepository) CountOverdue(db *gorm.DB, today time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Transaction{}).
		Where("due_date < ? AND status = ?", today, models.TransactionStatusIssued).
		Count(&n).Error
	return n, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE metacharacters in term match literally.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
