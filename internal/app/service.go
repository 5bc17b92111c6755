package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadderzzz/UmmahHub/internal/auth"
	"github.com/shadderzzz/UmmahHub/internal/authpw"
	"github.com/shadderzzz/UmmahHub/internal/category"
	"github.com/shadderzzz/UmmahHub/internal/email"
	"github.com/shadderzzz/UmmahHub/internal/export"
	"github.com/shadderzzz/UmmahHub/internal/ownership"
	"github.com/shadderzzz/UmmahHub/internal/readstate"
	"github.com/shadderzzz/UmmahHub/internal/search"
	"github.com/shadderzzz/UmmahHub/internal/store"
	"github.com/shadderzzz/UmmahHub/internal/thread"
)

const (
	archiveTimeout = 15 * time.Second
	notifyTimeout  = 30 * time.Second
)

type dataStore interface {
	thread.Source
	readstate.Store
	authpw.UserStore
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	GetAnswer(ctx context.Context, p category.Partition, questionID, answerID int64) (store.Answer, error)
	CreateQuestion(ctx context.Context, p category.Partition, authorID int64, title, body string) (int64, error)
	CreateAnswer(ctx context.Context, p category.Partition, authorID, questionID int64, body string) (int64, error)
	DeleteQuestionCascade(ctx context.Context, p category.Partition, id int64) error
	DeleteAnswer(ctx context.Context, p category.Partition, questionID, answerID int64) error
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexQuestion(r search.QuestionRecord)
	IndexAnswer(r search.AnswerRecord)
	IndexPrayer(r search.PrayerRecord)
	RemoveQuestion(questionID string, answerIDs []string)
	RemoveAnswer(id string)
	RemovePrayer(id string)
	ReindexAuthor(authorID int64)
}

type threadArchiver interface {
	Archive(ctx context.Context, view thread.View, categoryLabel string) ([]export.ArchivedObject, error)
}

type notifier interface {
	IsConfigured() bool
	SendAnswerNotification(to string, data email.AnswerNotificationData) error
	SendWelcome(to string, data email.WelcomeData) error
}

// Deps wires the service. Search, Archiver and Mailer are optional.
type Deps struct {
	Registry      *category.Registry
	Store         dataStore
	Sessions      auth.SessionStore
	SessionCookie string
	SessionTTL    time.Duration
	Search        searchIndex
	Archiver      threadArchiver
	Mailer        notifier
	BcryptCost    int
}

type Service struct {
	registry   *category.Registry
	store      dataStore
	threads    *thread.Assembler
	duas       *readstate.Tracker
	accounts   *authpw.Service
	resolver   *auth.Resolver
	exporter   *export.Service
	search     searchIndex
	archiver   threadArchiver
	mailer     notifier
	sessionTTL time.Duration
}

func New(deps Deps) *Service {
	registry := deps.Registry
	if registry == nil {
		registry = category.Default()
	}
	accounts := authpw.NewService(deps.Store)
	if deps.BcryptCost > 0 {
		accounts = authpw.NewServiceWithCost(deps.Store, deps.BcryptCost)
	}
	index := deps.Search
	if index == nil {
		index = nopIndex{}
	}
	return &Service{
		registry:   registry,
		store:      deps.Store,
		threads:    thread.NewAssembler(deps.Store),
		duas:       readstate.NewTracker(deps.Store),
		accounts:   accounts,
		resolver:   auth.NewResolver(deps.Sessions, deps.Store, deps.SessionCookie),
		exporter:   export.NewService(),
		search:     index,
		archiver:   deps.Archiver,
		mailer:     deps.Mailer,
		sessionTTL: deps.SessionTTL,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Categories() []category.Partition {
	return s.registry.All()
}

func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *Service) Resolver() *auth.Resolver {
	return s.resolver
}

// Accounts

func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (int64, error) {
	id, err := s.accounts.Register(ctx, req)
	if err != nil {
		return 0, err
	}
	if s.mailConfigured() {
		to, name := strings.TrimSpace(req.Email), strings.TrimSpace(req.Username)
		go func() {
			if err := s.mailer.SendWelcome(to, email.WelcomeData{UserName: name}); err != nil {
				log.Warn().Err(err).Int64("user_id", id).Msg("welcome email failed")
			}
		}()
	}
	return id, nil
}

// Login checks the credentials and opens a session, returning the raw token.
func (s *Service) Login(ctx context.Context, username, password string) (string, store.User, error) {
	user, err := s.accounts.Login(ctx, username, password)
	if err != nil {
		return "", store.User{}, err
	}
	token, err := s.resolver.Login(ctx, user.ID)
	if err != nil {
		return "", store.User{}, err
	}
	return token, user, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.resolver.Logout(ctx, token)
}

// Rename changes the actor's username. Stored content follows by id; the
// search index copies names, so the actor's documents are reindexed.
func (s *Service) Rename(ctx context.Context, actor auth.Principal, username string) (string, error) {
	renamed, err := s.accounts.Rename(ctx, actor.UserID, username)
	if err != nil {
		return "", err
	}
	s.search.ReindexAuthor(actor.UserID)
	return renamed, nil
}

// Forum

func (s *Service) ListThreads(ctx context.Context, rawCategory string) ([]thread.View, error) {
	p, err := s.registry.Resolve(rawCategory)
	if err != nil {
		return nil, err
	}
	return s.threads.All(ctx, p)
}

func (s *Service) GetThread(ctx context.Context, rawCategory string, questionID int64) (thread.View, error) {
	p, err := s.registry.Resolve(rawCategory)
	if err != nil {
		return thread.View{}, err
	}
	return s.threads.One(ctx, p, questionID)
}

func (s *Service) AskQuestion(ctx context.Context, actor auth.Principal, rawCategory, title, body string) (int64, error) {
	p, err := s.registry.Resolve(rawCategory)
	if err != nil {
		return 0, err
	}
	if err := requireText("title", title, "Title is required"); err != nil {
		return 0, err
	}
	if err := requireText("body", body, "Question body is required"); err != nil {
		return 0, err
	}
	id, err := s.store.CreateQuestion(ctx, p, actor.UserID, title, body)
	if err != nil {
		return 0, err
	}
	s.search.IndexQuestion(search.QuestionRecord{
		ID:         search.QuestionDocID(string(p.Category), id),
		Category:   string(p.Category),
		QuestionID: id,
		Title:      title,
		Body:       body,
		Author:     actor.Username,
	})
	return id, nil
}

func (s *Service) PostAnswer(ctx context.Context, actor auth.Principal, rawCategory string, questionID int64, body string) (int64, error) {
	p, err := s.registry.Resolve(rawCategory)
	if err != nil {
		return 0, err
	}
	if err := requireText("answer", body, "Answer is required"); err != nil {
		return 0, err
	}
	id, err := s.store.CreateAnswer(ctx, p, actor.UserID, questionID, body)
	if err != nil {
		return 0, err
	}

	question, err := s.store.GetQuestion(ctx, p, questionID)
	if err != nil {
		log.Warn().Err(err).Int64("question_id", questionID).Msg("load question after answer")
		return id, nil
	}
	s.search.IndexAnswer(search.AnswerRecord{
		ID:            search.AnswerDocID(string(p.Category), id),
		Category:      string(p.Category),
		QuestionID:    questionID,
		QuestionTitle: question.Title,
		Body:          body,
		Author:        actor.Username,
	})
	if question.AuthorID != actor.UserID {
		s.notifyAnswer(p, question, actor, body)
	}
	return id, nil
}

func (s *Service) notifyAnswer(p category.Partition, question store.Question, actor auth.Principal, body string) {
	if !s.mailConfigured() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		recipient, err := s.store.GetUserByID(ctx, question.AuthorID)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", question.AuthorID).Msg("answer notification: load recipient")
			return
		}
		err = s.mailer.SendAnswerNotification(recipient.Email, email.AnswerNotificationData{
			RecipientName: recipient.Username,
			AnswerAuthor:  actor.Username,
			CategoryLabel: p.Label,
			QuestionTitle: question.Title,
			AnswerExcerpt: body,
		})
		if err != nil {
			log.Warn().Err(err).Int64("question_id", question.ID).Msg("answer notification failed")
		}
	}()
}

// DeleteQuestion removes a question and all its answers. The thread is
// archived first when archive storage is configured; an archive failure is
// logged and does not block the delete.
func (s *Service) DeleteQuestion(ctx context.Context, actor auth.Principal, rawCategory string, questionID int64) error {
	p, err := s.registry.Resolve(rawCategory)
	if err != nil {
		return err
	}
	view, err := s.threads.One(ctx, p, questionID)
	if err != nil {
		return err
	}
	if err := ownership.AuthorizeDelete(actor.Username, view.Question.Author); err != nil {
		return err
	}

	if s.archiver != nil {
		archiveCtx, cancel := context.WithTimeout(ctx, archiveTimeout)
		objects, err := s.archiver.Archive(archiveCtx, view, p.Label)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("category", string(p.Category)).Int64("question_id", questionID).Msg("archive thread failed")
		} else {
			log.Info().Int("objects", len(objects)).Int64("question_id", questionID).Msg("thread archived")
		}
	}

	if err := s.store.DeleteQuestionCascade(ctx, p, questionID); err != nil {
		return err
	}
	answerIDs := make([]string, 0, len(view.Answers))
	for _, answer := range view.Answers {
		answerIDs = append(answerIDs, search.AnswerDocID(string(p.Category), answer.ID))
	}
	s.search.RemoveQuestion(search.QuestionDocID(string(p.Category), questionID), answerIDs)
	return nil
}

func (s *Service) DeleteAnswer(ctx context.Context, actor auth.Principal, rawCategory string, questionID, answerID int64) error {
	p, err := s.registry.Resolve(rawCategory)
	if err != nil {
		return err
	}
	answer, err := s.store.GetAnswer(ctx, p, questionID, answerID)
	if err != nil {
		return err
	}
	if err := ownership.AuthorizeDelete(actor.Username, answer.AuthorName); err != nil {
		return err
	}
	if err := s.store.DeleteAnswer(ctx, p, questionID, answerID); err != nil {
		return err
	}
	s.search.RemoveAnswer(search.AnswerDocID(string(p.Category), answerID))
	return nil
}

func (s *Service) ExportThread(ctx context.Context, rawCategory string, questionID int64, format export.Format) (*export.Result, error) {
	p, err := s.registry.Resolve(rawCategory)
	if err != nil {
		return nil, err
	}
	view, err := s.threads.One(ctx, p, questionID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(view, p.Label, format)
}

// Duas

func (s *Service) Duas(ctx context.Context, actor auth.Principal) (readstate.Board, error) {
	return s.duas.ListWithState(ctx, actor.UserID)
}

func (s *Service) PostDua(ctx context.Context, actor auth.Principal, text string) (int64, error) {
	if err := requireText("dua_text", text, "Dua request text is required"); err != nil {
		return 0, err
	}
	id, err := s.duas.Post(ctx, actor, text)
	if err != nil {
		return 0, err
	}
	s.search.IndexPrayer(search.PrayerRecord{ID: search.PrayerDocID(id), Text: text, Author: actor.Username})
	return id, nil
}

func (s *Service) ToggleDuaSeen(ctx context.Context, actor auth.Principal, requestID int64) (bool, error) {
	return s.duas.ToggleSeen(ctx, actor.UserID, requestID)
}

func (s *Service) DeleteDua(ctx context.Context, actor auth.Principal, requestID int64) error {
	if err := s.duas.DeleteRequest(ctx, actor, requestID); err != nil {
		return err
	}
	s.search.RemovePrayer(search.PrayerDocID(requestID))
	return nil
}

// Search

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if q.FilterCategory != "" {
		p, err := s.registry.Resolve(q.FilterCategory)
		if err != nil {
			return search.Response{}, err
		}
		q.FilterCategory = string(p.Category)
	}
	switch q.FilterType {
	case "", search.ResultQuestion, search.ResultAnswer, search.ResultPrayer:
	default:
		return search.Response{}, invalidInput("type", "Unknown result type "+strconv.Quote(string(q.FilterType)))
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) mailConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

type nopIndex struct{}

func (nopIndex) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (nopIndex) IndexQuestion(search.QuestionRecord) {}
func (nopIndex) IndexAnswer(search.AnswerRecord)     {}
func (nopIndex) IndexPrayer(search.PrayerRecord)     {}
func (nopIndex) RemoveQuestion(string, []string)     {}
func (nopIndex) RemoveAnswer(string)                 {}
func (nopIndex) RemovePrayer(string)                 {}
func (nopIndex) ReindexAuthor(int64)                 {}
