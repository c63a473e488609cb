package vectorstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"studyforge/internal/config"
	"studyforge/internal/logging"
	"studyforge/internal/services"
)

func TestWhereForRejectsEmptyFilter(t *testing.T) {
	_, err := whereFor(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestWhereForChunkIndexMustBeNumeric(t *testing.T) {
	_, err := whereFor(Filter{KeyChunkIndex: "x"})
	require.Error(t, err)

	where, err := whereFor(Filter{KeyContentID: "abc", KeyChunkIndex: "3"})
	require.NoError(t, err)
	assert.NotNil(t, where)
}

func TestDescribeFilterIsSorted(t *testing.T) {
	got := describeFilter(Filter{KeyText: "t", KeyContentID: "c", KeyChunkIndex: "1"})
	assert.Equal(t, "chunk_index=1,content_id=c,text=t", got)
}

func TestParseMatches(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]any{
			"StudyChunk": []any{
				map[string]any{
					"content_id":  "abc",
					"chunk_index": float64(2),
					"text":        "the krebs cycle",
					"_additional": map[string]any{"id": "0000-1", "certainty": 0.91},
				},
			},
		},
	}
	matches, err := parseMatches(data, "StudyChunk")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "abc", matches[0].ContentID)
	assert.Equal(t, 2, matches[0].ChunkIndex)
	assert.Equal(t, "the krebs cycle", matches[0].Text)
	assert.InDelta(t, 0.91, matches[0].Score, 1e-9)

	empty, err := parseMatches(map[string]models.JSONObject{}, "StudyChunk")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewFallsBackToMemory(t *testing.T) {
	store, err := New(config.VectorStore{ClassName: "StudyChunk"}, logging.NewNop())
	require.NoError(t, err)
	_, ok := store.(*Memory)
	assert.True(t, ok)
}

func TestNewWeaviateRejectsBadURL(t *testing.T) {
	_, err := NewWeaviate(config.VectorStore{URL: "://bad", ClassName: "StudyChunk"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrConfiguration))
}
