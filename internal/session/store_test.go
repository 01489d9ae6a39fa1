package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preplab/proctord/internal/model"
)

func TestAnswerStoreLastWriteWins(t *testing.T) {
	store := NewAnswerStore(nil, testLogger())

	store.Record("q-1", model.Scalar("a"))
	store.Record("q-1", model.Scalar("b"))

	got, ok := store.Get("q-1")
	require.True(t, ok)
	assert.Equal(t, "b", got.Single())
	assert.Equal(t, 1, store.Len())
}

func TestAnswerStoreNotifiesSink(t *testing.T) {
	sink := newFakeSink()
	store := NewAnswerStore(sink, testLogger())

	store.Record("q-1", model.List("a", "c"))

	saved, ok := sink.get("q-1")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, saved.Values())
}

func TestAnswerStoreGetMissing(t *testing.T) {
	store := NewAnswerStore(nil, testLogger())

	_, ok := store.Get("q-404")
	assert.False(t, ok)
}

func TestAnswerStoreReset(t *testing.T) {
	store := NewAnswerStore(nil, testLogger())
	store.Record("q-1", model.Scalar("a"))
	store.Record("q-2", model.Scalar("b"))

	store.Reset()

	assert.Equal(t, 0, store.Len())
	_, ok := store.Get("q-1")
	assert.False(t, ok)
}
