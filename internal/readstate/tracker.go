// Package readstate tracks which prayer requests each user has marked as seen.
package readstate

import (
	"context"
	"fmt"
	"time"

	"github.com/shadderzzz/UmmahHub/internal/auth"
	"github.com/shadderzzz/UmmahHub/internal/ownership"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

type Store interface {
	CreatePrayerRequest(ctx context.Context, authorID int64, text string) (int64, error)
	GetPrayerRequest(ctx context.Context, id int64) (store.PrayerRequest, error)
	DeletePrayerRequest(ctx context.Context, id int64) error
	ListPrayerRequestsWithState(ctx context.Context, userID int64) ([]store.PrayerRequestState, error)
	ToggleSeen(ctx context.Context, userID, requestID int64) (bool, error)
}

type Request struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Seen      bool      `json:"seen"`
}

// Board splits the prayer requests for one viewer. Every request appears in
// exactly one list, both newest first.
type Board struct {
	Seen   []Request `json:"seen"`
	Unseen []Request `json:"unseen"`
}

type Tracker struct {
	store Store
}

func NewTracker(s Store) *Tracker {
	return &Tracker{store: s}
}

func (t *Tracker) ListWithState(ctx context.Context, userID int64) (Board, error) {
	items, err := t.store.ListPrayerRequestsWithState(ctx, userID)
	if err != nil {
		return Board{}, fmt.Errorf("list prayer requests: %w", err)
	}
	board := Board{Seen: make([]Request, 0), Unseen: make([]Request, 0)}
	for _, item := range items {
		req := Request{
			ID:        item.ID,
			Text:      item.Text,
			Author:    item.AuthorName,
			CreatedAt: item.CreatedAt,
			Seen:      item.Seen,
		}
		if item.Seen {
			board.Seen = append(board.Seen, req)
		} else {
			board.Unseen = append(board.Unseen, req)
		}
	}
	return board, nil
}

// ToggleSeen flips the viewer's flag and returns the new value.
func (t *Tracker) ToggleSeen(ctx context.Context, userID, requestID int64) (bool, error) {
	seen, err := t.store.ToggleSeen(ctx, userID, requestID)
	if err != nil {
		return false, fmt.Errorf("toggle seen: %w", err)
	}
	return seen, nil
}

func (t *Tracker) Post(ctx context.Context, actor auth.Principal, text string) (int64, error) {
	id, err := t.store.CreatePrayerRequest(ctx, actor.UserID, text)
	if err != nil {
		return 0, fmt.Errorf("create prayer request: %w", err)
	}
	return id, nil
}

// DeleteRequest removes a request its author owns. Other users' read states
// for it are left as orphans.
func (t *Tracker) DeleteRequest(ctx context.Context, actor auth.Principal, requestID int64) error {
	req, err := t.store.GetPrayerRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("get prayer request: %w", err)
	}
	if err := ownership.AuthorizeDelete(actor.Username, req.AuthorName); err != nil {
		return err
	}
	if err := t.store.DeletePrayerRequest(ctx, requestID); err != nil {
		return fmt.Errorf("delete prayer request: %w", err)
	}
	return nil
}
