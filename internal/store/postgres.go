package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shadderzzz/UmmahHub/internal/category"
)

type PostgresStore struct {
	db      *sql.DB
	queries map[category.Key]partitionSQL
}

// partitionSQL holds the statements for one category, with table names
// quoted once at construction.
type partitionSQL struct {
	listQuestions   string
	getQuestion     string
	listAnswers     string
	listAllAnswers  string
	getAnswer       string
	insertQuestion  string
	insertAnswer    string
	lockQuestion    string
	deleteAnswersOf string
	deleteQuestion  string
	deleteAnswer    string
}

func NewPostgresStore(db *sql.DB, registry *category.Registry) *PostgresStore {
	s := &PostgresStore{db: db, queries: make(map[category.Key]partitionSQL)}
	for _, p := range registry.All() {
		s.queries[p.Category] = buildPartitionSQL(p)
	}
	return s
}

func buildPartitionSQL(p category.Partition) partitionSQL {
	q := pgx.Identifier{p.Questions}.Sanitize()
	a := pgx.Identifier{p.Answers}.Sanitize()

	selectQuestion := `
		SELECT q.id, q.title, q.body, q.author_id, u.username, q.created_at
		FROM ` + q + ` q
		JOIN users u ON u.id = q.author_id`
	selectAnswer := `
		SELECT a.id, a.question_id, a.author_id, u.username, a.body, a.created_at
		FROM ` + a + ` a
		JOIN users u ON u.id = a.author_id`

	return partitionSQL{
		listQuestions:   selectQuestion + ` ORDER BY q.created_at DESC, q.id ASC`,
		getQuestion:     selectQuestion + ` WHERE q.id = $1`,
		listAnswers:     selectAnswer + ` WHERE a.question_id = $1 ORDER BY a.created_at DESC, a.id ASC`,
		listAllAnswers:  selectAnswer + ` ORDER BY a.created_at DESC, a.id ASC`,
		getAnswer:       selectAnswer + ` WHERE a.question_id = $1 AND a.id = $2`,
		insertQuestion:  `INSERT INTO ` + q + ` (title, body, author_id) VALUES ($1, $2, $3) RETURNING id`,
		insertAnswer:    `INSERT INTO ` + a + ` (question_id, author_id, body) SELECT q.id, $2, $3 FROM ` + q + ` q WHERE q.id = $1 RETURNING id`,
		lockQuestion:    `SELECT id FROM ` + q + ` WHERE id = $1 FOR UPDATE`,
		deleteAnswersOf: `DELETE FROM ` + a + ` WHERE question_id = $1`,
		deleteQuestion:  `DELETE FROM ` + q + ` WHERE id = $1`,
		deleteAnswer:    `DELETE FROM ` + a + ` WHERE question_id = $1 AND id = $2`,
	}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) sqlFor(p category.Partition) (partitionSQL, error) {
	stmts, ok := s.queries[p.Category]
	if !ok {
		return partitionSQL{}, fmt.Errorf("%w: %q not registered with store", category.ErrNotFound, p.Category)
	}
	return stmts, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, p category.Partition) ([]Question, error) {
	stmts, err := s.sqlFor(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmts.listQuestions)
	if err != nil {
		return nil, storageErr("list questions", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		item := Question{Category: p.Category}
		if err := rows.Scan(&item.ID, &item.Title, &item.Body, &item.AuthorID, &item.AuthorName, &item.CreatedAt); err != nil {
			return nil, storageErr("scan question", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate questions", err)
	}
	return items, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, p category.Partition, id int64) (Question, error) {
	stmts, err := s.sqlFor(p)
	if err != nil {
		return Question{}, err
	}
	item := Question{Category: p.Category}
	err = s.db.QueryRowContext(ctx, stmts.getQuestion, id).Scan(
		&item.ID, &item.Title, &item.Body, &item.AuthorID, &item.AuthorName, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, storageErr("get question", err)
	}
	return item, nil
}

func (s *PostgresStore) ListAnswers(ctx context.Context, p category.Partition, questionID int64) ([]Answer, error) {
	stmts, err := s.sqlFor(p)
	if err != nil {
		return nil, err
	}
	return s.queryAnswers(ctx, stmts.listAnswers, questionID)
}

// ListPartitionAnswers returns every answer in the category in one query.
func (s *PostgresStore) ListPartitionAnswers(ctx context.Context, p category.Partition) ([]Answer, error) {
	stmts, err := s.sqlFor(p)
	if err != nil {
		return nil, err
	}
	return s.queryAnswers(ctx, stmts.listAllAnswers)
}

func (s *PostgresStore) queryAnswers(ctx context.Context, query string, args ...any) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list answers", err)
	}
	defer rows.Close()

	items := make([]Answer, 0)
	for rows.Next() {
		var item Answer
		if err := rows.Scan(&item.ID, &item.QuestionID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, storageErr("scan answer", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate answers", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAnswer(ctx context.Context, p category.Partition, questionID, answerID int64) (Answer, error) {
	stmts, err := s.sqlFor(p)
	if err != nil {
		return Answer{}, err
	}
	var item Answer
	err = s.db.QueryRowContext(ctx, stmts.getAnswer, questionID, answerID).Scan(
		&item.ID, &item.QuestionID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, ErrAnswerNotFound
	}
	if err != nil {
		return Answer{}, storageErr("get answer", err)
	}
	return item, nil
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, p category.Partition, authorID int64, title, body string) (int64, error) {
	if authorID <= 0 {
		return 0, ErrInvalidAuthor
	}
	stmts, err := s.sqlFor(p)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, stmts.insertQuestion, title, body, authorID).Scan(&id); err != nil {
		if _, ok := pgError(err, pgForeignKeyViolation); ok {
			return 0, ErrUserNotFound
		}
		return 0, storageErr("insert question", err)
	}
	return id, nil
}

// CreateAnswer inserts only when the question exists in the same partition.
func (s *PostgresStore) CreateAnswer(ctx context.Context, p category.Partition, authorID, questionID int64, body string) (int64, error) {
	if authorID <= 0 {
		return 0, ErrInvalidAuthor
	}
	stmts, err := s.sqlFor(p)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, stmts.insertAnswer, questionID, authorID, body).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrQuestionNotFound
	}
	if pgErr, ok := pgError(err, pgForeignKeyViolation); ok {
		if strings.Contains(pgErr.ConstraintName, "question_id") {
			return 0, ErrQuestionNotFound
		}
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, storageErr("insert answer", err)
	}
	return id, nil
}

// DeleteQuestionCascade removes the question's answers and then the question
// in one transaction. Nothing is deleted if any step fails.
func (s *PostgresStore) DeleteQuestionCascade(ctx context.Context, p category.Partition, id int64) error {
	stmts, err := s.sqlFor(p)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin delete question", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked int64
	err = tx.QueryRowContext(ctx, stmts.lockQuestion, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return storageErr("lock question", err)
	}

	if _, err := tx.ExecContext(ctx, stmts.deleteAnswersOf, id); err != nil {
		return storageErr("delete answers", err)
	}
	if _, err := tx.ExecContext(ctx, stmts.deleteQuestion, id); err != nil {
		return storageErr("delete question", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit delete question", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAnswer(ctx context.Context, p category.Partition, questionID, answerID int64) error {
	stmts, err := s.sqlFor(p)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, stmts.deleteAnswer, questionID, answerID)
	if err != nil {
		return storageErr("delete answer", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("delete answer rows", err)
	}
	if affected == 0 {
		return ErrAnswerNotFound
	}
	return nil
}
