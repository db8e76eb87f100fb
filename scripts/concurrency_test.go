//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the issue endpoint.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> <member1_id> [member2_id ...]
//
// Or use the convenience environment variables:
//
//	BOOK_ID=<uuid>  MEMBER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Reads the book's available_copies.
//  2. Fires N goroutines (one per member) all issuing the same book simultaneously.
//  3. Prints how many were issued vs. rejected as unavailable.
//  4. Re-reads available_copies and checks it dropped by exactly the number issued
//     and never went below zero.
//
// Prerequisites:
//   - Server must be running (librarydesk serve).
//   - At least 1 book with some copies and N members must exist in the DB.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type issueResult struct {
	MemberID   string
	Success    bool
	Message    string
	StatusCode int
	Err        error
}

var client = &http.Client{Timeout: 10 * time.Second}

func main() {
	serverAddr := os.Getenv("SERVER_URL")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	bookID := os.Getenv("BOOK_ID")
	var memberIDs []string
	if env := os.Getenv("MEMBER_IDS"); env != "" {
		memberIDs = strings.Split(env, ",")
	}

	// Support positional args: script <book_id> [member_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		bookID = args[0]
	}
	if len(args) >= 2 {
		memberIDs = args[1:]
	}

	if bookID == "" {
		log.Fatal("Usage: BOOK_ID=<uuid> MEMBER_IDS=<m1,m2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <book_id> <member1_id> [member2_id ...]")
	}
	if len(memberIDs) == 0 {
		log.Fatal("At least one member ID must be provided via MEMBER_IDS env or positional args")
	}

	before, err := availableCopies(serverAddr, bookID)
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	fmt.Printf("=== Library Concurrency Test ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Book      : %s (available=%d)\n", bookID, before)
	fmt.Printf("Members   : %d\n\n", len(memberIDs))

	results := make([]issueResult, len(memberIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, mid := range memberIDs {
		wg.Add(1)
		go func(idx int, memberID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptIssue(serverAddr, bookID, strings.TrimSpace(memberID))
		}(i, mid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Print("All requests completed.\n\n")

	var issued, unavailable, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] member=%-38s err=%v\n", r.MemberID, r.Err)
		case r.Success:
			issued++
			fmt.Printf("  [ISSU] member=%-38s status=%d %s\n", r.MemberID, r.StatusCode, r.Message)
		case r.StatusCode == http.StatusConflict:
			unavailable++
			fmt.Printf("  [NONE] member=%-38s status=%d %s\n", r.MemberID, r.StatusCode, r.Message)
		default:
			failures++
			fmt.Printf("  [FAIL] member=%-38s status=%d %s\n", r.MemberID, r.StatusCode, r.Message)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Issued      : %d\n", issued)
	fmt.Printf("Unavailable : %d\n", unavailable)
	fmt.Printf("Failures    : %d\n", failures)
	fmt.Printf("Total       : %d\n\n", len(memberIDs))

	after, err := availableCopies(serverAddr, bookID)
	if err != nil {
		log.Fatalf("re-read book: %v", err)
	}

	fmt.Println("--- Invariant Check ---")
	fmt.Printf("available_copies: before=%d after=%d issued=%d\n", before, after, issued)
	ok := true
	if after < 0 {
		fmt.Println("[FAIL] available_copies went negative")
		ok = false
	}
	if before-after != issued {
		fmt.Println("[FAIL] available_copies did not drop by the number of successful issues")
		ok = false
	}
	if issued > before {
		fmt.Println("[FAIL] more copies issued than were available")
		ok = false
	}

	if !ok || failures > 0 {
		if failures > 0 {
			fmt.Printf("\n[WARNING] %d request(s) failed, check server logs for details.\n", failures)
		}
		os.Exit(1)
	}
	fmt.Println("[ OK ] no over-issue")
}

// attemptIssue posts the issue form for the given member.
func attemptIssue(serverAddr, bookID, memberID string) issueResult {
	form := url.Values{"book_id": {bookID}, "member_id": {memberID}}
	resp, err := client.PostForm(serverAddr+"/transactions/issue", form)
	if err != nil {
		return issueResult{MemberID: memberID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return issueResult{MemberID: memberID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	return issueResult{
		MemberID:   memberID,
		Success:    parsed.Success,
		Message:    parsed.Message,
		StatusCode: resp.StatusCode,
	}
}

func availableCopies(serverAddr, bookID string) (int, error) {
	resp, err := client.Get(fmt.Sprintf("%s/books/%s/json", serverAddr, bookID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var book struct {
		AvailableCopies int `json:"available_copies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return 0, err
	}
	return book.AvailableCopies, nil
}
