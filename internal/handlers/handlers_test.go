package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/metrics"
	"librarydesk/internal/services"
	"librarydesk/internal/store/storetest"
)

var day0 = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

type testServer struct {
	router *gin.Engine
	clock  *testclock.Clock
}

func newServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := testclock.NewClock(day0)
	lib := services.NewLibrary(storetest.New(t), services.Options{Clock: clk})
	r := gin.New()
	RegisterRoutes(r, lib, opts)
	return &testServer{router: r, clock: clk}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *testServer) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) addBook(t *testing.T, title, copies string) string {
	t.Helper()
	w := s.postForm("/books/add", url.Values{
		"title":        {title},
		"author":       {"Author of " + title},
		"isbn":         {"isbn-" + title},
		"total_copies": {copies},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[result](t, w).ID
}

func (s *testServer) addMember(t *testing.T, name string) string {
	t.Helper()
	w := s.postForm("/members/add", url.Values{"name": {name}, "email": {name + "@example.com"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[result](t, w).ID
}

type bookJSON struct {
	Title           string  `json:"title"`
	Publisher       *string `json:"publisher"`
	TotalCopies     int     `json:"total_copies"`
	AvailableCopies int     `json:"available_copies"`
}

func (s *testServer) book(t *testing.T, id string) bookJSON {
	t.Helper()
	w := s.get("/books/" + id + "/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[bookJSON](t, w)
}

func transactionID(t *testing.T, message string) string {
	t.Helper()
	const prefix = "Book issued successfully. Transaction ID: "
	require.True(t, strings.HasPrefix(message, prefix), message)
	return strings.TrimPrefix(message, prefix)
}

// ─── Health ───────────────────────────────────────────────────────────────────

func TestHealthAndReadiness(t *testing.T) {
	ready := errors.New("db down")
	s := newServer(t, Options{Ready: func(context.Context) error { return ready }})

	assert.Equal(t, http.StatusOK, s.get("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.get("/readyz").Code)

	ready = nil
	assert.Equal(t, http.StatusOK, s.get("/readyz").Code)
}

func TestRootRedirectsToDashboard(t *testing.T) {
	s := newServer(t, Options{})
	w := s.get("/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector())
	s := newServer(t, Options{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	w := s.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "library_books_issued_total")
}

// ─── Books ────────────────────────────────────────────────────────────────────

func TestAddBookBlankCopiesDefaultsToOne(t *testing.T) {
	s := newServer(t, Options{})
	w := s.postForm("/books/add", url.Values{
		"title":            {"Dune"},
		"author":           {"Frank Herbert"},
		"isbn":             {"9780441172719"},
		"publisher":        {""},
		"publication_year": {""},
		"total_copies":     {""},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[result](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, "Book added successfully!", res.Message)

	got := s.book(t, res.ID)
	assert.Equal(t, 1, got.TotalCopies)
	assert.Equal(t, 1, got.AvailableCopies)
	assert.Nil(t, got.Publisher)
}

func TestAddBookJSON(t *testing.T) {
	s := newServer(t, Options{})
	w := s.postJSON("/books/add", `{"title":"Emma","author":"Jane Austen","isbn":"111","total_copies":"4","publication_year":1815}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := s.book(t, decode[result](t, w).ID)
	assert.Equal(t, 4, got.TotalCopies)
	assert.Equal(t, 4, got.AvailableCopies)
}

func TestAddBookRejectsBadInput(t *testing.T) {
	s := newServer(t, Options{})

	tests := []struct {
		name string
		form url.Values
	}{
		{"missing title", url.Values{"author": {"A"}, "isbn": {"1"}}},
		{"copies not a number", url.Values{"title": {"T"}, "author": {"A"}, "isbn": {"1"}, "total_copies": {"many"}}},
		{"negative copies", url.Values{"title": {"T"}, "author": {"A"}, "isbn": {"1"}, "total_copies": {"-1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.postForm("/books/add", tt.form)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			res := decode[result](t, w)
			assert.False(t, res.Success)
			assert.True(t, strings.HasPrefix(res.Message, "Error adding book: "), res.Message)
		})
	}
}

func TestUpdateBookAdjustsAvailability(t *testing.T) {
	s := newServer(t, Options{})
	id := s.addBook(t, "Emma", "2")

	w := s.postForm("/books/update/"+id, url.Values{
		"title":        {"Emma (2nd ed.)"},
		"author":       {"Jane Austen"},
		"isbn":         {"111"},
		"total_copies": {"5"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Book updated successfully!", decode[result](t, w).Message)

	got := s.book(t, id)
	assert.Equal(t, "Emma (2nd ed.)", got.Title)
	assert.Equal(t, 5, got.TotalCopies)
	assert.Equal(t, 5, got.AvailableCopies)
}

func TestUpdateUnknownBook(t *testing.T) {
	s := newServer(t, Options{})
	w := s.postForm("/books/update/6f1c2a4e-8a52-4c39-9f7e-0d1b2c3d4e5f", url.Values{
		"title": {"T"}, "author": {"A"}, "isbn": {"1"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteBook(t *testing.T) {
	s := newServer(t, Options{})
	id := s.addBook(t, "Emma", "1")

	w := s.get("/books/delete/" + id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Book deleted successfully!", decode[result](t, w).Message)
	assert.Equal(t, http.StatusNotFound, s.get("/books/"+id+"/json").Code)

	assert.Equal(t, http.StatusBadRequest, s.get("/books/delete/not-a-uuid").Code)
}

func TestGetBookNotFound(t *testing.T) {
	s := newServer(t, Options{})
	for _, id := range []string{"6f1c2a4e-8a52-4c39-9f7e-0d1b2c3d4e5f", "garbage"} {
		w := s.get("/books/" + id + "/json")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"Book not found"}`, w.Body.String())
	}
}

func TestSearchBooks(t *testing.T) {
	s := newServer(t, Options{})
	s.addBook(t, "Dune", "1")
	s.addBook(t, "Emma", "1")

	w := s.get("/books/search?q=dune")
	require.Equal(t, http.StatusOK, w.Code)
	books := decode[[]bookJSON](t, w)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)

	w = s.get("/books/search?q=nothing-matches")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Len(t, decode[[]bookJSON](t, s.get("/books/search")), 2)
}

// ─── Members ──────────────────────────────────────────────────────────────────

func TestMemberLifecycle(t *testing.T) {
	s := newServer(t, Options{})
	id := s.addMember(t, "ada")

	w := s.get("/members/" + id + "/json")
	require.Equal(t, http.StatusOK, w.Code)
	member := decode[map[string]any](t, w)
	assert.Equal(t, "active", member["status"])

	w = s.postForm("/members/update/"+id, url.Values{
		"name": {"Ada Lovelace"}, "email": {"ada@example.org"}, "status": {"inactive"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Member updated successfully!", decode[result](t, w).Message)

	member = decode[map[string]any](t, s.get("/members/"+id+"/json"))
	assert.Equal(t, "Ada Lovelace", member["name"])
	assert.Equal(t, "inactive", member["status"])

	members := decode[[]map[string]any](t, s.get("/members"))
	assert.Len(t, members, 1)

	w = s.get("/members/delete/" + id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Member deleted successfully!", decode[result](t, w).Message)
	assert.Equal(t, http.StatusNotFound, s.get("/members/"+id+"/json").Code)
}

func TestAddMemberRequiresEmail(t *testing.T) {
	s := newServer(t, Options{})
	w := s.postForm("/members/add", url.Values{"name": {"ada"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.HasPrefix(decode[result](t, w).Message, "Error adding member: "))
}

// ─── Transactions ─────────────────────────────────────────────────────────────

func TestIssueAndReturnWithFine(t *testing.T) {
	s := newServer(t, Options{})
	bookID := s.addBook(t, "Dune", "2")
	memberID := s.addMember(t, "ada")

	w := s.postForm("/transactions/issue", url.Values{"book_id": {bookID}, "member_id": {memberID}, "days": {""}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	txnID := transactionID(t, decode[result](t, w).Message)
	assert.Equal(t, 1, s.book(t, bookID).AvailableCopies)

	// Default loan is 14 days; returning on day 17 is 3 days late.
	s.clock.Advance(17 * 24 * time.Hour)

	w = s.get("/transactions/return/" + txnID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Book returned successfully. Fine: $6", decode[result](t, w).Message)
	assert.Equal(t, 2, s.book(t, bookID).AvailableCopies)

	w = s.get("/transactions/return/" + txnID)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Transaction not found or book already returned", decode[result](t, w).Message)
}

func TestReturnOnTimeHasNoFine(t *testing.T) {
	s := newServer(t, Options{})
	bookID := s.addBook(t, "Dune", "1")
	memberID := s.addMember(t, "ada")

	w := s.postJSON("/transactions/issue", `{"book_id":"`+bookID+`","member_id":"`+memberID+`","days":7}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	txnID := transactionID(t, decode[result](t, w).Message)

	s.clock.Advance(7 * 24 * time.Hour)
	w = s.postForm("/transactions/return/"+txnID, url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Book returned successfully", decode[result](t, w).Message)
}

func TestIssueFailures(t *testing.T) {
	s := newServer(t, Options{})
	bookID := s.addBook(t, "Dune", "1")
	memberID := s.addMember(t, "ada")

	w := s.postForm("/transactions/issue", url.Values{"book_id": {bookID}, "member_id": {memberID}})
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name    string
		form    url.Values
		code    int
		message string
	}{
		{"no copies left", url.Values{"book_id": {bookID}, "member_id": {memberID}}, http.StatusConflict, "Book not available"},
		{"unknown book", url.Values{"book_id": {"6f1c2a4e-8a52-4c39-9f7e-0d1b2c3d4e5f"}, "member_id": {memberID}}, http.StatusConflict, "Book not available"},
		{"bad book id", url.Values{"book_id": {"x"}, "member_id": {memberID}}, http.StatusBadRequest, "invalid book id"},
		{"days not a number", url.Values{"book_id": {bookID}, "member_id": {memberID}, "days": {"soon"}}, http.StatusBadRequest, ""},
		{"missing member", url.Values{"book_id": {bookID}}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.postForm("/transactions/issue", tt.form)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			res := decode[result](t, w)
			assert.False(t, res.Success)
			if tt.message != "" {
				assert.Equal(t, tt.message, res.Message)
			}
		})
	}
}

func TestIssueUnknownMember(t *testing.T) {
	s := newServer(t, Options{})
	bookID := s.addBook(t, "Dune", "1")

	w := s.postForm("/transactions/issue", url.Values{
		"book_id":   {bookID},
		"member_id": {"6f1c2a4e-8a52-4c39-9f7e-0d1b2c3d4e5f"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, s.book(t, bookID).AvailableCopies)
}

func TestIssueRejectsNonPositiveDays(t *testing.T) {
	s := newServer(t, Options{})
	bookID := s.addBook(t, "Dune", "1")
	memberID := s.addMember(t, "ada")

	w := s.postForm("/transactions/issue", url.Values{"book_id": {bookID}, "member_id": {memberID}, "days": {"0"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, s.book(t, bookID).AvailableCopies)
}

func TestReturnUnknownTransaction(t *testing.T) {
	s := newServer(t, Options{})
	w := s.get("/transactions/return/6f1c2a4e-8a52-4c39-9f7e-0d1b2c3d4e5f")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Transaction not found or book already returned", decode[result](t, w).Message)
}

func TestTransactionsPageAndOverdue(t *testing.T) {
	s := newServer(t, Options{})
	bookID := s.addBook(t, "Dune", "1")
	memberID := s.addMember(t, "ada")

	w := s.postForm("/transactions/issue", url.Values{"book_id": {bookID}, "member_id": {memberID}, "days": {"3"}})
	require.Equal(t, http.StatusOK, w.Code)

	page := decode[struct {
		Transactions []map[string]any `json:"transactions"`
		Books        []map[string]any `json:"books"`
		Members      []map[string]any `json:"members"`
	}](t, s.get("/transactions"))
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "Dune", page.Transactions[0]["book_title"])
	assert.Equal(t, "ada", page.Transactions[0]["member_name"])
	assert.Len(t, page.Books, 1)
	assert.Len(t, page.Members, 1)

	assert.JSONEq(t, `[]`, s.get("/transactions/overdue").Body.String())

	s.clock.Advance(5 * 24 * time.Hour)
	overdue := decode[[]map[string]any](t, s.get("/transactions/overdue"))
	require.Len(t, overdue, 1)
	assert.EqualValues(t, 2, overdue[0]["days_overdue"])

	dash := decode[struct {
		Stats struct {
			TotalBooks   int `json:"total_books"`
			TotalMembers int `json:"total_members"`
			IssuedBooks  int `json:"issued_books"`
			OverdueBooks int `json:"overdue_books"`
		} `json:"stats"`
		Recent []map[string]any `json:"recent_transactions"`
	}](t, s.get("/dashboard"))
	assert.Equal(t, 1, dash.Stats.TotalBooks)
	assert.Equal(t, 1, dash.Stats.TotalMembers)
	assert.Equal(t, 1, dash.Stats.IssuedBooks)
	assert.Equal(t, 1, dash.Stats.OverdueBooks)
	assert.Len(t, dash.Recent, 1)
}
