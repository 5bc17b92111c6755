// Package thread composes question/answer views for a category.
package thread

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shadderzzz/UmmahHub/internal/category"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

type Question struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	AuthorID  int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type Answer struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"questionId"`
	Body       string    `json:"body"`
	Author     string    `json:"author"`
	AuthorID   int64     `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// View is a question with its answers, newest first. ResponseCount always
// equals len(Answers).
type View struct {
	Category      category.Key `json:"category"`
	Question      Question     `json:"question"`
	Answers       []Answer     `json:"answers"`
	ResponseCount int          `json:"responseCount"`
}

// Source is the read side of the discussion store.
type Source interface {
	ListQuestions(ctx context.Context, p category.Partition) ([]store.Question, error)
	GetQuestion(ctx context.Context, p category.Partition, id int64) (store.Question, error)
	ListAnswers(ctx context.Context, p category.Partition, questionID int64) ([]store.Answer, error)
	ListPartitionAnswers(ctx context.Context, p category.Partition) ([]store.Answer, error)
}

type Assembler struct {
	source Source
}

func NewAssembler(source Source) *Assembler {
	return &Assembler{source: source}
}

// All builds a view for every question in the category using two queries.
func (a *Assembler) All(ctx context.Context, p category.Partition) ([]View, error) {
	questions, err := a.source.ListQuestions(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return []View{}, nil
	}
	answers, err := a.source.ListPartitionAnswers(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return Group(p.Category, questions, answers), nil
}

// One builds the view of a single question.
func (a *Assembler) One(ctx context.Context, p category.Partition, questionID int64) (View, error) {
	question, err := a.source.GetQuestion(ctx, p, questionID)
	if err != nil {
		return View{}, fmt.Errorf("get question: %w", err)
	}
	answers, err := a.source.ListAnswers(ctx, p, questionID)
	if err != nil {
		return View{}, fmt.Errorf("list answers: %w", err)
	}
	views := Group(p.Category, []store.Question{question}, answers)
	return views[0], nil
}

// Group attaches answers to their questions. Answers whose question is not in
// the list are dropped. Questions and answers are ordered newest first with
// ties broken by ascending id, regardless of input order.
func Group(key category.Key, questions []store.Question, answers []store.Answer) []View {
	byQuestion := make(map[int64][]Answer, len(questions))
	for _, q := range questions {
		byQuestion[q.ID] = make([]Answer, 0)
	}
	for _, a := range answers {
		bucket, ok := byQuestion[a.QuestionID]
		if !ok {
			continue
		}
		byQuestion[a.QuestionID] = append(bucket, Answer{
			ID:         a.ID,
			QuestionID: a.QuestionID,
			Body:       a.Body,
			Author:     a.AuthorName,
			AuthorID:   a.AuthorID,
			CreatedAt:  a.CreatedAt,
		})
	}

	views := make([]View, 0, len(questions))
	for _, q := range questions {
		list := byQuestion[q.ID]
		sort.Slice(list, func(i, j int) bool {
			return newerFirst(list[i].CreatedAt, list[i].ID, list[j].CreatedAt, list[j].ID)
		})
		views = append(views, View{
			Category: key,
			Question: Question{
				ID:        q.ID,
				Title:     q.Title,
				Body:      q.Body,
				Author:    q.AuthorName,
				AuthorID:  q.AuthorID,
				CreatedAt: q.CreatedAt,
			},
			Answers:       list,
			ResponseCount: len(list),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return newerFirst(views[i].Question.CreatedAt, views[i].Question.ID, views[j].Question.CreatedAt, views[j].Question.ID)
	})
	return views
}

func newerFirst(at time.Time, id int64, otherAt time.Time, otherID int64) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id < otherID
}
