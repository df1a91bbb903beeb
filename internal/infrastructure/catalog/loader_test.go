package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbites/progression-engine/internal/domain/badge"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/catalog"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/memory"
)

func TestDefault(t *testing.T) {
	defs := catalog.Default()
	require.NotEmpty(t, defs)

	ids := make(map[string]bool)
	for _, d := range defs {
		assert.NoError(t, d.Validate(), d.ID)
		assert.False(t, ids[d.ID], "duplicate id %s", d.ID)
		ids[d.ID] = true
	}
	assert.True(t, ids["quiz-20"])
}

func TestParse(t *testing.T) {
	defs, err := catalog.Parse([]byte(`
badges:
  - id: quiz-js
    name: JS Quizzer
    criterion: { kind: quiz_specific_topic, topic_id: js }
    threshold: 5
`))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, badge.QuizSpecificTopic("js"), defs[0].Criterion)
	assert.Equal(t, 5, defs[0].Threshold)

	_, err = catalog.Parse([]byte("badges: [unterminated"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	defs, err := catalog.Load("")
	require.NoError(t, err)
	assert.Equal(t, catalog.Default(), defs)

	defs, err = catalog.Load("testdata/catalog.yaml")
	require.NoError(t, err)
	assert.Len(t, defs, 5)

	_, err = catalog.Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	defs, err := catalog.LoadFile("testdata/catalog.yaml")
	require.NoError(t, err)

	res, err := catalog.Seed(ctx, store, defs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)
	require.Len(t, res.Rejected, 4)
	for _, e := range res.Rejected {
		assert.True(t, shared.IsConfiguration(e), e.Error())
	}
	assert.ErrorIs(t, res.Rejected[0], shared.ErrInvalidCriterion)

	got, err := store.Get(ctx, "js-reader")
	require.NoError(t, err)
	assert.Equal(t, "JS Reader", got.Name)
	assert.Equal(t, badge.ReadSpecificTopic("js"), got.Criterion)

	_, err = store.Get(ctx, "mystery")
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)
}
