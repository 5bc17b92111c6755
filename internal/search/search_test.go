package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadderzzz/UmmahHub/internal/category"
)

func TestDocIDs(t *testing.T) {
	assert.Equal(t, "afterlife-q12", QuestionDocID("afterlife", 12))
	assert.Equal(t, "this-life-a3", AnswerDocID("this-life", 3))
	assert.Equal(t, "prayer-9", PrayerDocID(9))
}

func TestQueryWants(t *testing.T) {
	all := Query{}
	assert.True(t, all.wants(ResultQuestion))
	assert.True(t, all.wants(ResultPrayer))

	scoped := Query{FilterCategory: "afterlife"}
	assert.True(t, scoped.wants(ResultAnswer))
	assert.False(t, scoped.wants(ResultPrayer))

	typed := Query{FilterType: ResultPrayer}
	assert.False(t, typed.wants(ResultQuestion))
	assert.True(t, typed.wants(ResultPrayer))
}

func TestQueryNormalized(t *testing.T) {
	q := Query{Text: "  patience ", Limit: 1000, Offset: -3}.normalized()
	assert.Equal(t, "patience", q.Text)
	assert.Equal(t, 20, q.Limit)
	assert.Equal(t, 0, q.Offset)
}

// Every bound parameter must be referenced by the statement.
func TestBuildSearchSQLParameters(t *testing.T) {
	p := NewPgFTS(nil, category.Default())
	tests := []struct {
		name     string
		query    Query
		args     int
		contains []string
		excludes []string
	}{
		{"all", Query{Text: "x"}, 3, []string{`"afterlife_questions"`, `"this_life_answers"`, "prayer_requests"}, nil},
		{"one category", Query{Text: "x", FilterCategory: "this-life"}, 2, []string{`"this_life_questions"`}, []string{`"afterlife_questions"`, "prayer_requests"}},
		{"prayers only", Query{Text: "x", FilterType: ResultPrayer}, 1, []string{"prayer_requests"}, []string{"_questions"}},
		{"unknown category", Query{Text: "x", FilterCategory: "nowhere"}, 0, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := p.buildSearchSQL(tt.query)
			if tt.args == 0 {
				assert.Empty(t, sql)
				return
			}
			require.Len(t, args, tt.args)
			for i := 1; i <= len(args); i++ {
				assert.Contains(t, sql, fmt.Sprintf("$%d", i))
			}
			assert.NotContains(t, sql, fmt.Sprintf("$%d", len(args)+1))
			for _, want := range tt.contains {
				assert.Contains(t, sql, want)
			}
			for _, unwanted := range tt.excludes {
				assert.False(t, strings.Contains(sql, unwanted), "unexpected %s", unwanted)
			}
		})
	}
}

func rawHit(t *testing.T, fields map[string]any) meili.Hit {
	t.Helper()
	hit := meili.Hit{}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		hit[k] = raw
	}
	return hit
}

func TestHitToResult(t *testing.T) {
	hit := rawHit(t, map[string]any{
		"id":         "afterlife-q4",
		"category":   "afterlife",
		"questionId": 4,
		"title":      "Barzakh",
		"body":       "What happens in the grave?",
		"author":     "alice",
		"_formatted": map[string]any{"title": "<mark>Barzakh</mark>", "questionId": "4"},
	})
	r := hitToResult(hit, ResultQuestion)
	assert.Equal(t, Result{
		Type:       ResultQuestion,
		ID:         "afterlife-q4",
		Category:   "afterlife",
		QuestionID: 4,
		Title:      "<mark>Barzakh</mark>",
		Snippet:    "What happens in the grave?",
		Author:     "alice",
	}, r)
}

func TestPageByScoreMergesIndexes(t *testing.T) {
	hit := func(id string, score float64) scoredResult {
		return scoredResult{Result: Result{ID: id}, score: score}
	}
	// Each index returned its own top offset+limit hits.
	hits := []scoredResult{
		hit("afterlife-q1", 0.9), hit("afterlife-q2", 0.4), hit("afterlife-q3", 0.2),
		hit("afterlife-a1", 0.8), hit("afterlife-a2", 0.4), hit("afterlife-a3", 0.1),
		hit("prayer-1", 0.7), hit("prayer-2", 0.6), hit("prayer-3", 0.5),
	}
	ids := func(results []Result) []string {
		out := make([]string, 0, len(results))
		for _, r := range results {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []string{"afterlife-q1", "afterlife-a1", "prayer-1"}, ids(pageByScore(hits, 0, 3)))
	assert.Equal(t, []string{"prayer-2", "prayer-3", "afterlife-a2"}, ids(pageByScore(hits, 3, 3)))
	assert.Len(t, pageByScore(hits, 8, 3), 1)
	assert.Empty(t, pageByScore(hits, 9, 3))
}

func TestSearchWithoutBackends(t *testing.T) {
	resp := NewService(nil, nil).Search(context.Background(), Query{Text: "sabr"})
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.Total)
	assert.Equal(t, "sabr", resp.Query)
}

func TestIndexingIsNoopWithoutMeili(t *testing.T) {
	svc := NewService(nil, nil)
	svc.IndexQuestion(QuestionRecord{ID: "afterlife-q1"})
	svc.IndexAnswer(AnswerRecord{ID: "afterlife-a1"})
	svc.IndexPrayer(PrayerRecord{ID: "prayer-1"})
	svc.RemoveQuestion("afterlife-q1", []string{"afterlife-a1"})
	svc.RemoveAnswer("afterlife-a1")
	svc.RemovePrayer("prayer-1")
	svc.ReindexAuthor(1)
	svc.ReindexAllFromPG(context.Background())
}
