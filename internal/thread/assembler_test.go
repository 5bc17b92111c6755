package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadderzzz/UmmahHub/internal/category"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	questions      []store.Question
	answers        []store.Answer
	err            error
	partitionCalls int
	answerCalls    int
}

func (f *fakeSource) ListQuestions(context.Context, category.Partition) ([]store.Question, error) {
	return f.questions, f.err
}

func (f *fakeSource) GetQuestion(_ context.Context, _ category.Partition, id int64) (store.Question, error) {
	for _, q := range f.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return store.Question{}, store.ErrQuestionNotFound
}

func (f *fakeSource) ListAnswers(_ context.Context, _ category.Partition, questionID int64) ([]store.Answer, error) {
	f.answerCalls++
	out := make([]store.Answer, 0)
	for _, a := range f.answers {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out, f.err
}

func (f *fakeSource) ListPartitionAnswers(context.Context, category.Partition) ([]store.Answer, error) {
	f.partitionCalls++
	return f.answers, f.err
}

func afterlife(t *testing.T) category.Partition {
	t.Helper()
	p, err := category.Default().Resolve("afterlife")
	require.NoError(t, err)
	return p
}

func TestGroupAttachesAnswersAndCounts(t *testing.T) {
	questions := []store.Question{
		{ID: 1, Title: "Q1", AuthorName: "alice", AuthorID: 10, CreatedAt: base},
		{ID: 2, Title: "Q2", AuthorName: "bob", AuthorID: 11, CreatedAt: base.Add(time.Hour)},
	}
	answers := []store.Answer{
		{ID: 5, QuestionID: 1, Body: "older", AuthorName: "bob", CreatedAt: base.Add(time.Minute)},
		{ID: 6, QuestionID: 1, Body: "newer", AuthorName: "carol", CreatedAt: base.Add(2 * time.Minute)},
		{ID: 7, QuestionID: 99, Body: "stray", CreatedAt: base},
	}

	views := Group(category.Afterlife, questions, answers)

	want := []View{
		{
			Category:      category.Afterlife,
			Question:      Question{ID: 2, Title: "Q2", Author: "bob", AuthorID: 11, CreatedAt: base.Add(time.Hour)},
			Answers:       []Answer{},
			ResponseCount: 0,
		},
		{
			Category: category.Afterlife,
			Question: Question{ID: 1, Title: "Q1", Author: "alice", AuthorID: 10, CreatedAt: base},
			Answers: []Answer{
				{ID: 6, QuestionID: 1, Body: "newer", Author: "carol", CreatedAt: base.Add(2 * time.Minute)},
				{ID: 5, QuestionID: 1, Body: "older", Author: "bob", CreatedAt: base.Add(time.Minute)},
			},
			ResponseCount: 2,
		},
	}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Errorf("Group mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupTieBreaksByID(t *testing.T) {
	questions := []store.Question{
		{ID: 3, CreatedAt: base},
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base},
	}
	answers := []store.Answer{
		{ID: 9, QuestionID: 1, CreatedAt: base},
		{ID: 8, QuestionID: 1, CreatedAt: base},
	}
	views := Group(category.ThisLife, questions, answers)

	ids := []int64{views[0].Question.ID, views[1].Question.ID, views[2].Question.ID}
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, int64(8), views[0].Answers[0].ID)
	assert.Equal(t, int64(9), views[0].Answers[1].ID)
}

func TestAllUsesSinglePartitionQuery(t *testing.T) {
	src := &fakeSource{
		questions: []store.Question{{ID: 1, CreatedAt: base}, {ID: 2, CreatedAt: base.Add(time.Second)}},
		answers:   []store.Answer{{ID: 1, QuestionID: 1, CreatedAt: base}},
	}
	views, err := NewAssembler(src).All(context.Background(), afterlife(t))
	require.NoError(t, err)

	require.Len(t, views, 2)
	assert.Equal(t, 1, src.partitionCalls)
	assert.Zero(t, src.answerCalls)
	for _, v := range views {
		assert.Equal(t, len(v.Answers), v.ResponseCount)
	}
}

func TestAllEmptyCategory(t *testing.T) {
	src := &fakeSource{}
	views, err := NewAssembler(src).All(context.Background(), afterlife(t))
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
	assert.Zero(t, src.partitionCalls)
}

func TestOne(t *testing.T) {
	src := &fakeSource{
		questions: []store.Question{{ID: 4, Title: "Q", AuthorName: "alice", CreatedAt: base}},
		answers: []store.Answer{
			{ID: 1, QuestionID: 4, AuthorName: "bob", CreatedAt: base},
			{ID: 2, QuestionID: 5, CreatedAt: base},
		},
	}
	view, err := NewAssembler(src).One(context.Background(), afterlife(t), 4)
	require.NoError(t, err)
	assert.Equal(t, "Q", view.Question.Title)
	assert.Equal(t, 1, view.ResponseCount)
	assert.Equal(t, "bob", view.Answers[0].Author)
}

func TestOneNotFound(t *testing.T) {
	_, err := NewAssembler(&fakeSource{}).One(context.Background(), afterlife(t), 77)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStorageErrorsPropagate(t *testing.T) {
	fault := &store.StorageError{Op: "list questions", Err: errors.New("down")}
	_, err := NewAssembler(&fakeSource{err: fault}).All(context.Background(), afterlife(t))

	var storageFault *store.StorageError
	assert.True(t, errors.As(err, &storageFault))
}
