package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"librarydesk/internal/models"
	"librarydesk/internal/services"
)

// Options carries the optional collaborators of the router.
type Options struct {
	// Ready reports whether the store is reachable; nil means always ready.
	Ready func(ctx context.Context) error
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type LibraryHandler struct {
	lib  *services.Library
	opts Options
}

func RegisterRoutes(r *gin.Engine, lib *services.Library, opts Options) {
	h := &LibraryHandler{lib: lib, opts: opts}

	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/dashboard") })
	r.GET("/dashboard", h.dashboard)

	// Books
	r.GET("/books", h.listBooks)
	r.POST("/books/add", h.addBook)
	r.POST("/books/update/:id", h.updateBook)
	r.GET("/books/delete/:id", h.deleteBook)
	r.POST("/books/delete/:id", h.deleteBook)
	r.GET("/books/search", h.searchBooks)
	r.GET("/books/:id/json", h.getBook)

	// Members
	r.GET("/members", h.listMembers)
	r.POST("/members/add", h.addMember)
	r.POST("/members/update/:id", h.updateMember)
	r.GET("/members/delete/:id", h.deleteMember)
	r.POST("/members/delete/:id", h.deleteMember)
	r.GET("/members/:id/json", h.getMember)

	// Transactions
	r.GET("/transactions", h.listTransactions)
	r.POST("/transactions/issue", h.issueBook)
	r.GET("/transactions/return/:id", h.returnBook)
	r.POST("/transactions/return/:id", h.returnBook)
	r.GET("/transactions/overdue", h.overdueTransactions)
}

// ─── Request Types ────────────────────────────────────────────────────────────

// optionalInt is an integer that may be absent or blank in a form or JSON
// body. JSON accepts both numbers and numeric strings.
type optionalInt struct {
	set   bool
	value int
}

func (o *optionalInt) UnmarshalParam(param string) error {
	param = strings.TrimSpace(param)
	if param == "" {
		*o = optionalInt{}
		return nil
	}
	n, err := strconv.Atoi(param)
	if err != nil {
		return fmt.Errorf("%q is not a whole number", param)
	}
	*o = optionalInt{set: true, value: n}
	return nil
}

func (o *optionalInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = optionalInt{}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*o = optionalInt{set: true, value: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%s is not a whole number", data)
	}
	return o.UnmarshalParam(s)
}

func (o optionalInt) ptr() *int {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

type bookRequest struct {
	Title           string      `form:"title" json:"title" binding:"required"`
	Author          string      `form:"author" json:"author" binding:"required"`
	ISBN            string      `form:"isbn" json:"isbn" binding:"required"`
	Publisher       string      `form:"publisher" json:"publisher"`
	PublicationYear optionalInt `form:"publication_year" json:"publication_year"`
	Category        string      `form:"category" json:"category"`
	TotalCopies     optionalInt `form:"total_copies" json:"total_copies"`
}

func (r bookRequest) input() services.BookInput {
	return services.BookInput{
		Title:           r.Title,
		Author:          r.Author,
		ISBN:            r.ISBN,
		Publisher:       optionalString(r.Publisher),
		PublicationYear: r.PublicationYear.ptr(),
		Category:        optionalString(r.Category),
		TotalCopies:     r.TotalCopies.ptr(),
	}
}

type memberRequest struct {
	Name   string `form:"name" json:"name" binding:"required"`
	Email  string `form:"email" json:"email" binding:"required"`
	Phone  string `form:"phone" json:"phone"`
	Status string `form:"status" json:"status"`
}

type issueRequest struct {
	BookID   string      `form:"book_id" json:"book_id" binding:"required"`
	MemberID string      `form:"member_id" json:"member_id" binding:"required"`
	Days     optionalInt `form:"days" json:"days"`
}

// ─── Responses ────────────────────────────────────────────────────────────────

func respond(c *gin.Context, status int, success bool, message string) {
	c.JSON(status, gin.H{"success": success, "message": message})
}

func fail(c *gin.Context, prefix string, err error) {
	respond(c, statusFor(err), false, prefix+err.Error())
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case services.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBookUnavailable), errors.Is(err, services.ErrAlreadyReturned):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	}
	var se *services.StoreError
	if errors.As(err, &se) && se.Conflict() {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond(c, http.StatusBadRequest, false, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

// ─── Health ───────────────────────────────────────────────────────────────────

func (h *LibraryHandler) healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *LibraryHandler) readyz(c *gin.Context) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db not ready")
			return
		}
	}
	c.String(http.StatusOK, "ready")
}

// ─── Dashboard ────────────────────────────────────────────────────────────────

func (h *LibraryHandler) dashboard(c *gin.Context) {
	stats, err := h.lib.Dashboard.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats": gin.H{
			"total_books":   stats.TotalBooks,
			"total_members": stats.TotalMembers,
			"issued_books":  stats.IssuedBooks,
			"overdue_books": stats.OverdueBooks,
		},
		"recent_transactions": stats.RecentTransactions,
		"overdue_books":       stats.Overdue,
		"now":                 time.Now().Format("2006-01-02 15:04:05"),
	})
}

// ─── Books ────────────────────────────────────────────────────────────────────

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.lib.Books.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) addBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBind(&req); err != nil {
		respond(c, http.StatusBadRequest, false, "Error adding book: "+err.Error())
		return
	}
	book, err := h.lib.Books.Add(c.Request.Context(), req.input())
	if err != nil {
		fail(c, "Error adding book: ", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Book added successfully!", "id": book.ID})
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	id, ok := parseID(c, "book")
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBind(&req); err != nil {
		respond(c, http.StatusBadRequest, false, "Error updating book: "+err.Error())
		return
	}
	if _, err := h.lib.Books.Update(c.Request.Context(), id, req.input()); err != nil {
		fail(c, "Error updating book: ", err)
		return
	}
	respond(c, http.StatusOK, true, "Book updated successfully!")
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	id, ok := parseID(c, "book")
	if !ok {
		return
	}
	if err := h.lib.Books.Delete(c.Request.Context(), id); err != nil {
		fail(c, "Error deleting book: ", err)
		return
	}
	respond(c, http.StatusOK, true, "Book deleted successfully!")
}

func (h *LibraryHandler) searchBooks(c *gin.Context) {
	books, err := h.lib.Books.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	book, err := h.lib.Books.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, book)
}

// ─── Members ──────────────────────────────────────────────────────────────────

func (h *LibraryHandler) listMembers(c *gin.Context) {
	members, err := h.lib.Members.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if members == nil {
		members = []models.Member{}
	}
	c.JSON(http.StatusOK, members)
}

func (h *LibraryHandler) addMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBind(&req); err != nil {
		respond(c, http.StatusBadRequest, false, "Error adding member: "+err.Error())
		return
	}
	member, err := h.lib.Members.Add(c.Request.Context(), services.MemberInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: optionalString(req.Phone),
	})
	if err != nil {
		fail(c, "Error adding member: ", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Member added successfully!", "id": member.ID})
}

func (h *LibraryHandler) updateMember(c *gin.Context) {
	id, ok := parseID(c, "member")
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBind(&req); err != nil {
		respond(c, http.StatusBadRequest, false, "Error updating member: "+err.Error())
		return
	}
	err := h.lib.Members.Update(c.Request.Context(), id, services.MemberInput{
		Name:   req.Name,
		Email:  req.Email,
		Phone:  optionalString(req.Phone),
		Status: models.MemberStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		fail(c, "Error updating member: ", err)
		return
	}
	respond(c, http.StatusOK, true, "Member updated successfully!")
}

func (h *LibraryHandler) deleteMember(c *gin.Context) {
	id, ok := parseID(c, "member")
	if !ok {
		return
	}
	if err := h.lib.Members.Delete(c.Request.Context(), id); err != nil {
		fail(c, "Error deleting member: ", err)
		return
	}
	respond(c, http.StatusOK, true, "Member deleted successfully!")
}

func (h *LibraryHandler) getMember(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}
	member, err := h.lib.Members.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, member)
}

// ─── Transactions ─────────────────────────────────────────────────────────────

// listTransactions also returns the books and members so a client can build
// its issue pick-lists from one call.
func (h *LibraryHandler) listTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	txns, err := h.lib.Transactions.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	books, err := h.lib.Books.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	members, err := h.lib.Members.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"books":        books,
		"members":      members,
	})
}

func (h *LibraryHandler) issueBook(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBind(&req); err != nil {
		respond(c, http.StatusBadRequest, false, err.Error())
		return
	}
	bookID, err := uuid.Parse(req.BookID)
	if err != nil {
		respond(c, http.StatusBadRequest, false, "invalid book id")
		return
	}
	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		respond(c, http.StatusBadRequest, false, "invalid member id")
		return
	}
	days := h.lib.Transactions.LoanPeriodDays()
	if req.Days.set {
		days = req.Days.value
	}

	txn, err := h.lib.Transactions.Issue(c.Request.Context(), bookID, memberID, days)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookUnavailable):
			respond(c, http.StatusConflict, false, "Book not available")
		case errors.Is(err, services.ErrMemberNotFound):
			respond(c, http.StatusNotFound, false, "Member not found")
		default:
			respond(c, statusFor(err), false, err.Error())
		}
		return
	}
	respond(c, http.StatusOK, true, fmt.Sprintf("Book issued successfully. Transaction ID: %s", txn.ID))
}

func (h *LibraryHandler) returnBook(c *gin.Context) {
	id, ok := parseID(c, "transaction")
	if !ok {
		return
	}
	txn, err := h.lib.Transactions.Return(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) || errors.Is(err, services.ErrAlreadyReturned) {
			respond(c, statusFor(err), false, "Transaction not found or book already returned")
			return
		}
		respond(c, statusFor(err), false, err.Error())
		return
	}
	if txn.FineAmount > 0 {
		respond(c, http.StatusOK, true, fmt.Sprintf("Book returned successfully. Fine: $%d", txn.FineAmount))
		return
	}
	respond(c, http.StatusOK, true, "Book returned successfully")
}

func (h *LibraryHandler) overdueTransactions(c *gin.Context) {
	rows, err := h.lib.Transactions.Overdue(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
