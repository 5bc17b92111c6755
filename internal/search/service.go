package search

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q = q.normalized()
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Warn().Err(err).Msg("search: meilisearch error, falling back to pgfts")
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("search: pgfts error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) live() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexQuestion indexes a question (fire-and-forget to Meilisearch).
func (s *Service) IndexQuestion(r QuestionRecord) {
	if !s.live() {
		return
	}
	go func() {
		if err := s.meili.IndexQuestions([]QuestionRecord{r}); err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("search: index question")
		}
	}()
}

// IndexAnswer indexes an answer (fire-and-forget to Meilisearch).
func (s *Service) IndexAnswer(r AnswerRecord) {
	if !s.live() {
		return
	}
	go func() {
		if err := s.meili.IndexAnswers([]AnswerRecord{r}); err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("search: index answer")
		}
	}()
}

// IndexPrayer indexes a prayer request (fire-and-forget to Meilisearch).
func (s *Service) IndexPrayer(r PrayerRecord) {
	if !s.live() {
		return
	}
	go func() {
		if err := s.meili.IndexPrayers([]PrayerRecord{r}); err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("search: index prayer request")
		}
	}()
}

// RemoveQuestion drops a question and the given answer ids from the index.
func (s *Service) RemoveQuestion(questionID string, answerIDs []string) {
	if !s.live() {
		return
	}
	go func() {
		if err := s.meili.deleteFrom(idxQuestions, questionID); err != nil {
			log.Warn().Err(err).Msg("search: remove question")
		}
		if err := s.meili.deleteFrom(idxAnswers, answerIDs...); err != nil {
			log.Warn().Err(err).Msg("search: remove answers")
		}
	}()
}

func (s *Service) RemoveAnswer(id string) {
	if !s.live() {
		return
	}
	go func() {
		if err := s.meili.deleteFrom(idxAnswers, id); err != nil {
			log.Warn().Err(err).Msg("search: remove answer")
		}
	}()
}

func (s *Service) RemovePrayer(id string) {
	if !s.live() {
		return
	}
	go func() {
		if err := s.meili.deleteFrom(idxPrayers, id); err != nil {
			log.Warn().Err(err).Msg("search: remove prayer request")
		}
	}()
}

// ReindexAllFromPG pushes every searchable row from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.live() || s.pgfts == nil {
		return
	}
	questions, answers, prayers, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Error().Err(err).Msg("search: reindex load failed")
		return
	}
	if err := s.meili.IndexQuestions(questions); err != nil {
		log.Warn().Err(err).Msg("search: reindex questions")
	}
	if err := s.meili.IndexAnswers(answers); err != nil {
		log.Warn().Err(err).Msg("search: reindex answers")
	}
	if err := s.meili.IndexPrayers(prayers); err != nil {
		log.Warn().Err(err).Msg("search: reindex prayer requests")
	}
	log.Info().
		Int("questions", len(questions)).
		Int("answers", len(answers)).
		Int("prayers", len(prayers)).
		Msg("search: reindex complete")
}

// ReindexAuthor rewrites one user's documents in the background so hits
// carry the current username after a rename.
func (s *Service) ReindexAuthor(authorID int64) {
	if !s.live() || s.pgfts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		questions, answers, prayers, err := s.pgfts.LoadAuthorRecords(ctx, authorID)
		if err != nil {
			log.Warn().Err(err).Int64("author_id", authorID).Msg("search: load author records")
			return
		}
		if err := s.meili.IndexQuestions(questions); err != nil {
			log.Warn().Err(err).Int64("author_id", authorID).Msg("search: reindex author questions")
		}
		if err := s.meili.IndexAnswers(answers); err != nil {
			log.Warn().Err(err).Int64("author_id", authorID).Msg("search: reindex author answers")
		}
		if err := s.meili.IndexPrayers(prayers); err != nil {
			log.Warn().Err(err).Int64("author_id", authorID).Msg("search: reindex author prayer requests")
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
