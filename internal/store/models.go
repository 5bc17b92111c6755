package store

import (
	"time"

	"github.com/shadderzzz/UmmahHub/internal/category"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Location     string
	CreatedAt    time.Time
}

type Question struct {
	ID         int64
	Category   category.Key
	Title      string
	Body       string
	AuthorID   int64
	AuthorName string
	CreatedAt  time.Time
}

type Answer struct {
	ID         int64
	QuestionID int64
	AuthorID   int64
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

type PrayerRequest struct {
	ID         int64
	AuthorID   int64
	AuthorName string
	Text       string
	CreatedAt  time.Time
}

// PrayerRequestState is a prayer request as seen by one viewer.
type PrayerRequestState struct {
	PrayerRequest
	Seen bool
}
