package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shadderzzz/UmmahHub/internal/category"
)

// PgFTS searches with PostgreSQL full-text search over the generated fts columns.
type PgFTS struct {
	db       *sql.DB
	registry *category.Registry
}

func NewPgFTS(db *sql.DB, registry *category.Registry) *PgFTS {
	return &PgFTS{db: db, registry: registry}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const headlineOpts = `'MaxFragments=1,MaxWords=30'`

// buildSearchSQL returns the UNION ALL of every requested entity, ranked by ts_rank.
// $1 is the query text; category keys are bound as further parameters.
func (p *PgFTS) buildSearchSQL(q Query) (string, []any) {
	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	var subQueries []string
	for _, part := range p.registry.All() {
		if q.FilterCategory != "" && q.FilterCategory != string(part.Category) {
			continue
		}
		// Unreferenced parameters make Postgres reject the statement.
		if !q.wants(ResultQuestion) && !q.wants(ResultAnswer) {
			break
		}
		args = append(args, string(part.Category))
		catParam := fmt.Sprintf("$%d::text", len(args))
		qt := pgx.Identifier{part.Questions}.Sanitize()
		at := pgx.Identifier{part.Answers}.Sanitize()

		if q.wants(ResultQuestion) {
			subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'question'::text AS type, %[1]s || '-q' || q.id AS id, %[1]s AS category, q.id AS question_id,
				q.title, ts_headline('english', q.body, %[2]s, %[4]s) AS snippet, u.username AS author,
				ts_rank(q.fts, %[2]s) AS rank
			FROM %[3]s q
			JOIN users u ON u.id = q.author_id
			WHERE q.fts @@ %[2]s`, catParam, tsQuery, qt, headlineOpts))
		}
		if q.wants(ResultAnswer) {
			subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'answer'::text AS type, %[1]s || '-a' || a.id AS id, %[1]s AS category, a.question_id,
				q.title, ts_headline('english', a.body, %[2]s, %[5]s) AS snippet, u.username AS author,
				ts_rank(a.fts, %[2]s) AS rank
			FROM %[3]s a
			JOIN %[4]s q ON q.id = a.question_id
			JOIN users u ON u.id = a.author_id
			WHERE a.fts @@ %[2]s`, catParam, tsQuery, at, qt, headlineOpts))
		}
	}

	if q.wants(ResultPrayer) {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'prayer'::text AS type, 'prayer-' || pr.id AS id, ''::text AS category, 0::bigint AS question_id,
				''::text AS title, ts_headline('english', pr.text, %[1]s, %[2]s) AS snippet, u.username AS author,
				ts_rank(pr.fts, %[1]s) AS rank
			FROM prayer_requests pr
			JOIN users u ON u.id = pr.author_id
			WHERE pr.fts @@ %[1]s`, tsQuery, headlineOpts))
	}

	if len(subQueries) == 0 {
		return "", nil
	}
	return strings.Join(subQueries, " UNION ALL "), args
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = q.normalized()
	if q.Text == "" {
		return nil, 0, nil
	}

	union, args := p.buildSearchSQL(q)
	if union == "" {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, category, question_id, title, snippet, author
		FROM (%s) sub
		ORDER BY rank DESC, id ASC
		LIMIT %d OFFSET %d`, union, q.Limit, q.Offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Category, &r.QuestionID, &r.Title, &r.Snippet, &r.Author); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable row for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]QuestionRecord, []AnswerRecord, []PrayerRecord, error) {
	return p.loadRecords(ctx, 0)
}

// LoadAuthorRecords loads the documents written by one user, with their
// current username.
func (p *PgFTS) LoadAuthorRecords(ctx context.Context, authorID int64) ([]QuestionRecord, []AnswerRecord, []PrayerRecord, error) {
	return p.loadRecords(ctx, authorID)
}

// loadRecords reads indexable rows; authorID 0 selects every author.
func (p *PgFTS) loadRecords(ctx context.Context, authorID int64) ([]QuestionRecord, []AnswerRecord, []PrayerRecord, error) {
	questions := make([]QuestionRecord, 0)
	answers := make([]AnswerRecord, 0)

	for _, part := range p.registry.All() {
		key := string(part.Category)
		qt := pgx.Identifier{part.Questions}.Sanitize()
		at := pgx.Identifier{part.Answers}.Sanitize()

		qRows, err := p.db.QueryContext(ctx, `
			SELECT q.id, q.title, q.body, u.username
			FROM `+qt+` q JOIN users u ON u.id = q.author_id
			WHERE $1::bigint = 0 OR q.author_id = $1::bigint`, authorID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load %s questions: %w", key, err)
		}
		for qRows.Next() {
			r := QuestionRecord{Category: key}
			if err := qRows.Scan(&r.QuestionID, &r.Title, &r.Body, &r.Author); err != nil {
				qRows.Close()
				return nil, nil, nil, fmt.Errorf("scan question: %w", err)
			}
			r.ID = QuestionDocID(key, r.QuestionID)
			questions = append(questions, r)
		}
		qRows.Close()
		if err := qRows.Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("iterate questions: %w", err)
		}

		aRows, err := p.db.QueryContext(ctx, `
			SELECT a.id, a.question_id, q.title, a.body, u.username
			FROM `+at+` a
			JOIN `+qt+` q ON q.id = a.question_id
			JOIN users u ON u.id = a.author_id
			WHERE $1::bigint = 0 OR a.author_id = $1::bigint`, authorID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load %s answers: %w", key, err)
		}
		for aRows.Next() {
			r := AnswerRecord{Category: key}
			var answerID int64
			if err := aRows.Scan(&answerID, &r.QuestionID, &r.QuestionTitle, &r.Body, &r.Author); err != nil {
				aRows.Close()
				return nil, nil, nil, fmt.Errorf("scan answer: %w", err)
			}
			r.ID = AnswerDocID(key, answerID)
			answers = append(answers, r)
		}
		aRows.Close()
		if err := aRows.Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("iterate answers: %w", err)
		}
	}

	pRows, err := p.db.QueryContext(ctx, `
		SELECT pr.id, pr.text, u.username
		FROM prayer_requests pr JOIN users u ON u.id = pr.author_id
		WHERE $1::bigint = 0 OR pr.author_id = $1::bigint`, authorID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load prayer requests: %w", err)
	}
	defer pRows.Close()

	prayers := make([]PrayerRecord, 0)
	for pRows.Next() {
		var r PrayerRecord
		var id int64
		if err := pRows.Scan(&id, &r.Text, &r.Author); err != nil {
			return nil, nil, nil, fmt.Errorf("scan prayer request: %w", err)
		}
		r.ID = PrayerDocID(id)
		prayers = append(prayers, r)
	}
	if err := pRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate prayer requests: %w", err)
	}

	return questions, answers, prayers, nil
}
