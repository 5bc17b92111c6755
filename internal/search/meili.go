package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog/log"
)

const (
	idxQuestions = "ummahhub_questions"
	idxAnswers   = "ummahhub_answers"
	idxPrayers   = "ummahhub_prayers"
)

// Meili searches and indexes through Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxQuestions,
			filterable: []string{"category"},
			searchable: []string{"title", "body"},
		},
		{
			uid:        idxAnswers,
			filterable: []string{"category", "questionId"},
			searchable: []string{"body", "questionTitle"},
		},
		{
			uid:        idxPrayers,
			searchable: []string{"text"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Debug().Err(err).Str("index", idx.uid).Msg("search: create index (may already exist)")
		}

		index := m.client.Index(idx.uid)
		if len(idx.filterable) > 0 {
			filterable := make([]interface{}, len(idx.filterable))
			for i, v := range idx.filterable {
				filterable[i] = v
			}
			if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
				log.Warn().Err(err).Str("index", idx.uid).Msg("search: update filterable attributes")
			}
		}
		searchable := idx.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Warn().Err(err).Str("index", idx.uid).Msg("search: update searchable attributes")
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Info().Msg("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the selected indexes in one multi-search. Each index returns
// its top offset+limit hits, which are merged by ranking score and paged once.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	q = q.normalized()

	targets := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxQuestions, ResultQuestion},
		{idxAnswers, ResultAnswer},
		{idxPrayers, ResultPrayer},
	}

	var queries []*meili.SearchRequest
	for _, target := range targets {
		if !q.wants(target.rtyp) {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              target.uid,
			Query:                 q.Text,
			Limit:                 int64(q.Offset + q.Limit),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}
		if q.FilterCategory != "" {
			sr.Filter = fmt.Sprintf("category = %q", q.FilterCategory)
		}
		queries = append(queries, sr)
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var hits []scoredResult
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			hits = append(hits, scoredResult{Result: hitToResult(hit, rtyp), score: decodeFloat(hit, "_rankingScore")})
		}
	}
	return pageByScore(hits, q.Offset, q.Limit), total, nil
}

type scoredResult struct {
	Result
	score float64
}

// pageByScore orders hits from all indexes by score, then id, and returns
// one page of them.
func pageByScore(hits []scoredResult, offset, limit int) []Result {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].ID < hits[j].ID
	})
	if offset >= len(hits) {
		return nil
	}
	end := min(offset+limit, len(hits))
	results := make([]Result, 0, end-offset)
	for _, h := range hits[offset:end] {
		results = append(results, h.Result)
	}
	return results
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxQuestions:
		return ResultQuestion
	case idxAnswers:
		return ResultAnswer
	case idxPrayers:
		return ResultPrayer
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.Category = decodeString(hit, "category")
	r.QuestionID = decodeInt(hit, "questionId")
	r.Author = decodeString(hit, "author")

	switch rtyp {
	case ResultQuestion:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body"))
	case ResultAnswer:
		r.Title = decodeString(hit, "questionTitle")
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body"))
	case ResultPrayer:
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFloat(hit meili.Hit, key string) float64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexQuestions(records []QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxQuestions).AddDocuments(records, nil)
	return err
}

func (m *Meili) IndexAnswers(records []AnswerRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxAnswers).AddDocuments(records, nil)
	return err
}

func (m *Meili) IndexPrayers(records []PrayerRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPrayers).AddDocuments(records, nil)
	return err
}

func (m *Meili) deleteFrom(uid string, ids ...string) error {
	index := m.client.Index(uid)
	for _, id := range ids {
		if _, err := index.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete %s from %s: %w", id, uid, err)
		}
	}
	return nil
}
