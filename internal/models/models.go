package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

type TransactionStatus string

const (
	TransactionStatusIssued   TransactionStatus = "issued"
	TransactionStatusReturned TransactionStatus = "returned"
)

type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Author          string    `gorm:"size:255;not null" json:"author"`
	ISBN            string    `gorm:"column:isbn;size:32;not null" json:"isbn"`
	Publisher       *string   `gorm:"size:255" json:"publisher"`
	PublicationYear *int      `json:"publication_year"`
	Category        *string   `gorm:"size:100" json:"category"`
	TotalCopies     int       `gorm:"not null" json:"total_copies"`
	AvailableCopies int       `gorm:"not null" json:"available_copies"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
}

type Member struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string       `gorm:"size:255;not null" json:"name"`
	Email          string       `gorm:"size:255;not null" json:"email"`
	Phone          *string      `gorm:"size:32" json:"phone"`
	MembershipDate time.Time    `gorm:"type:date;not null" json:"membership_date"`
	Status         MemberStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt      time.Time    `gorm:"not null;index" json:"created_at"`
}

type Transaction struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BookID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"book_id"`
	MemberID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"member_id"`
	IssueDate  time.Time         `gorm:"type:date;not null" json:"issue_date"`
	DueDate    time.Time         `gorm:"type:date;not null;index" json:"due_date"`
	ReturnDate *time.Time        `gorm:"type:date" json:"return_date"`
	FineAmount int               `gorm:"not null;default:0" json:"fine_amount"`
	Status     TransactionStatus `gorm:"size:20;not null;default:'issued';index" json:"status"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

// TransactionDetail is a transaction joined with the title of its book and
// the name of its member.
type TransactionDetail struct {
	Transaction
	BookTitle  string `json:"book_title"`
	MemberName string `json:"member_name"`
}

// OverdueTransaction is an issued transaction past its due date.
type OverdueTransaction struct {
	TransactionDetail
	DaysOverdue int `gorm:"-" json:"days_overdue"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
