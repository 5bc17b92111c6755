package search

import (
	"fmt"
	"strings"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultQuestion ResultType = "question"
	ResultAnswer   ResultType = "answer"
	ResultPrayer   ResultType = "prayer"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Category   string     `json:"category,omitempty"`
	QuestionID int64      `json:"questionId,omitempty"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	Author     string     `json:"author"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterCategory string     // empty = all categories; prayer requests have none
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// QuestionRecord is the data we index for a question.
type QuestionRecord struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	QuestionID int64  `json:"questionId"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Author     string `json:"author"`
}

// AnswerRecord is the data we index for an answer.
type AnswerRecord struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	QuestionID    int64  `json:"questionId"`
	QuestionTitle string `json:"questionTitle"`
	Body          string `json:"body"`
	Author        string `json:"author"`
}

// PrayerRecord is the data we index for a prayer request.
type PrayerRecord struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Author string `json:"author"`
}

// Document ids are unique across categories because row ids are per table.

func QuestionDocID(category string, id int64) string {
	return fmt.Sprintf("%s-q%d", category, id)
}

func AnswerDocID(category string, id int64) string {
	return fmt.Sprintf("%s-a%d", category, id)
}

func PrayerDocID(id int64) string {
	return fmt.Sprintf("prayer-%d", id)
}

func (q Query) normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

func (q Query) wants(t ResultType) bool {
	if q.FilterType != "" && q.FilterType != t {
		return false
	}
	// Prayer requests are not categorized.
	if t == ResultPrayer && q.FilterCategory != "" {
		return false
	}
	return true
}
