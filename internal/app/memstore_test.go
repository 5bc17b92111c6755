package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shadderzzz/UmmahHub/internal/category"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

type memQuestion struct {
	category category.Key
	row      store.Question
}

type memAnswer struct {
	category category.Key
	row      store.Answer
}

type memStateKey struct {
	user    int64
	request int64
}

// memStore is an in-memory dataStore. Author names are looked up at read
// time, mirroring the users join of the Postgres store.
type memStore struct {
	mu        sync.Mutex
	clock     time.Time
	nextID    int64
	pingErr   error
	users     map[int64]store.User
	questions map[int64]memQuestion
	answers   map[int64]memAnswer
	prayers   map[int64]store.PrayerRequest
	states    map[memStateKey]bool
}

func newMemStore() *memStore {
	return &memStore{
		clock:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		users:     map[int64]store.User{},
		questions: map[int64]memQuestion{},
		answers:   map[int64]memAnswer{},
		prayers:   map[int64]store.PrayerRequest{},
		states:    map[memStateKey]bool{},
	}
}

func (m *memStore) tick() (int64, time.Time) {
	m.nextID++
	m.clock = m.clock.Add(time.Minute)
	return m.nextID, m.clock
}

func (m *memStore) name(id int64) string {
	return m.users[id].Username
}

func (m *memStore) Ping(context.Context) error {
	return m.pingErr
}

func (m *memStore) CreateUser(_ context.Context, user store.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return 0, store.ErrUsernameTaken
		}
		if existing.Email == user.Email {
			return 0, store.ErrEmailTaken
		}
	}
	id, now := m.tick()
	user.ID = id
	user.CreatedAt = now
	m.users[id] = user
	return id, nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return user, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, store.ErrUserNotFound
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrUserNotFound
}

func (m *memStore) RenameUser(_ context.Context, id int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	for otherID, other := range m.users {
		if otherID != id && other.Username == username {
			return store.ErrUsernameTaken
		}
	}
	user.Username = username
	m.users[id] = user
	return nil
}

func (m *memStore) question(p category.Partition, id int64) (store.Question, bool) {
	q, ok := m.questions[id]
	if !ok || q.category != p.Category {
		return store.Question{}, false
	}
	row := q.row
	row.AuthorName = m.name(row.AuthorID)
	return row, true
}

func (m *memStore) ListQuestions(_ context.Context, p category.Partition) ([]store.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Question, 0)
	for id := range m.questions {
		if q, ok := m.question(p, id); ok {
			items = append(items, q)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (m *memStore) GetQuestion(_ context.Context, p category.Partition, id int64) (store.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.question(p, id)
	if !ok {
		return store.Question{}, store.ErrQuestionNotFound
	}
	return q, nil
}

func (m *memStore) answersWhere(p category.Partition, keep func(store.Answer) bool) []store.Answer {
	items := make([]store.Answer, 0)
	for _, a := range m.answers {
		if a.category != p.Category || !keep(a.row) {
			continue
		}
		row := a.row
		row.AuthorName = m.name(row.AuthorID)
		items = append(items, row)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items
}

func (m *memStore) ListAnswers(_ context.Context, p category.Partition, questionID int64) ([]store.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answersWhere(p, func(a store.Answer) bool { return a.QuestionID == questionID }), nil
}

func (m *memStore) ListPartitionAnswers(_ context.Context, p category.Partition) ([]store.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answersWhere(p, func(store.Answer) bool { return true }), nil
}

func (m *memStore) GetAnswer(_ context.Context, p category.Partition, questionID, answerID int64) (store.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok || a.category != p.Category || a.row.QuestionID != questionID {
		return store.Answer{}, store.ErrAnswerNotFound
	}
	row := a.row
	row.AuthorName = m.name(row.AuthorID)
	return row, nil
}

func (m *memStore) CreateQuestion(_ context.Context, p category.Partition, authorID int64, title, body string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if authorID <= 0 {
		return 0, store.ErrInvalidAuthor
	}
	if _, ok := m.users[authorID]; !ok {
		return 0, store.ErrUserNotFound
	}
	id, now := m.tick()
	m.questions[id] = memQuestion{category: p.Category, row: store.Question{
		ID: id, Category: p.Category, Title: title, Body: body, AuthorID: authorID, CreatedAt: now,
	}}
	return id, nil
}

func (m *memStore) CreateAnswer(_ context.Context, p category.Partition, authorID, questionID int64, body string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if authorID <= 0 {
		return 0, store.ErrInvalidAuthor
	}
	if _, ok := m.question(p, questionID); !ok {
		return 0, store.ErrQuestionNotFound
	}
	id, now := m.tick()
	m.answers[id] = memAnswer{category: p.Category, row: store.Answer{
		ID: id, QuestionID: questionID, AuthorID: authorID, Body: body, CreatedAt: now,
	}}
	return id, nil
}

func (m *memStore) DeleteQuestionCascade(_ context.Context, p category.Partition, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.question(p, id); !ok {
		return store.ErrQuestionNotFound
	}
	for answerID, a := range m.answers {
		if a.category == p.Category && a.row.QuestionID == id {
			delete(m.answers, answerID)
		}
	}
	delete(m.questions, id)
	return nil
}

func (m *memStore) DeleteAnswer(_ context.Context, p category.Partition, questionID, answerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok || a.category != p.Category || a.row.QuestionID != questionID {
		return store.ErrAnswerNotFound
	}
	delete(m.answers, answerID)
	return nil
}

func (m *memStore) CreatePrayerRequest(_ context.Context, authorID int64, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if authorID <= 0 {
		return 0, store.ErrInvalidAuthor
	}
	id, now := m.tick()
	m.prayers[id] = store.PrayerRequest{ID: id, AuthorID: authorID, Text: text, CreatedAt: now}
	return id, nil
}

func (m *memStore) GetPrayerRequest(_ context.Context, id int64) (store.PrayerRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.prayers[id]
	if !ok {
		return store.PrayerRequest{}, store.ErrPrayerRequestNotFound
	}
	req.AuthorName = m.name(req.AuthorID)
	return req, nil
}

func (m *memStore) DeletePrayerRequest(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prayers[id]; !ok {
		return store.ErrPrayerRequestNotFound
	}
	delete(m.prayers, id)
	return nil
}

func (m *memStore) ListPrayerRequestsWithState(_ context.Context, userID int64) ([]store.PrayerRequestState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.PrayerRequestState, 0, len(m.prayers))
	for id, req := range m.prayers {
		req.AuthorName = m.name(req.AuthorID)
		items = append(items, store.PrayerRequestState{PrayerRequest: req, Seen: m.states[memStateKey{userID, id}]})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (m *memStore) ToggleSeen(_ context.Context, userID, requestID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prayers[requestID]; !ok {
		return false, store.ErrPrayerRequestNotFound
	}
	key := memStateKey{userID, requestID}
	m.states[key] = !m.states[key]
	return m.states[key], nil
}

func (m *memStore) questionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions)
}

func (m *memStore) prayerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prayers)
}

func (m *memStore) answerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.answers)
}

func (m *memStore) stateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
