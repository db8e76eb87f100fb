package services

import "time"

// dateOf truncates t to its calendar date at midnight UTC.
func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the whole calendar days from `from` to `to`; negative
// when to is earlier.
func daysBetween(from, to time.Time) int {
	return int(dateOf(to).Sub(dateOf(from)).Hours() / 24)
}

// calculateFine computes the overdue fine for a return.
//
// Rules:
//   - No fine if the book comes back on or before the due date.
//   - Otherwise every whole calendar day past the due date costs finePerDay.
func calculateFine(dueDate, returnDate time.Time, finePerDay int) int {
	late := daysBetween(dueDate, returnDate)
	if late <= 0 {
		return 0
	}
	return late * finePerDay
}
