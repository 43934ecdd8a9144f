package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Items []string `json:"items"`
}

func (d *testDoc) Init() {
	if d.Items == nil {
		d.Items = []string{}
	}
}

func TestLoadCollection(t *testing.T) {
	backends := map[string]func(t *testing.T) service.DocumentStore{
		"file": func(t *testing.T) service.DocumentStore {
			t.Helper()
			store, err := NewFileStore(afero.NewMemMapFs(), "/data")
			require.NoError(t, err)
			return store
		},
		"sqlite": func(t *testing.T) service.DocumentStore {
			t.Helper()
			return createTestStore(t)
		},
	}

	for name, newStore := range backends {
		t.Run(name+"/missing document", func(t *testing.T) {
			store := newStore(t)
			doc, err := LoadCollection[testDoc](context.Background(), store, "things", nil)
			require.NoError(t, err)
			assert.Empty(t, doc.Items)
		})

		t.Run(name+"/round trip", func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			require.NoError(t, SaveCollection(ctx, store, "things", testDoc{Items: []string{"a", "b"}}))

			doc, err := LoadCollection[testDoc](ctx, store, "things", nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, doc.Items)
		})

		t.Run(name+"/corrupt document is backed up and reset", func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, "things", []byte(`{"items": [`)))

			doc, err := LoadCollection[testDoc](ctx, store, "things", nil)
			require.NoError(t, err)
			assert.Empty(t, doc.Items)

			data, err := store.Load(ctx, "things")
			require.NoError(t, err)
			assert.JSONEq(t, `{"items": []}`, string(data), "collection reset to an empty list")

			doc, err = LoadCollection[testDoc](ctx, store, "things", nil)
			require.NoError(t, err)
			assert.Empty(t, doc.Items)
		})
	}
}

func TestSaveCollection_EmptyListsEncodeAsArrays(t *testing.T) {
	store, err := NewFileStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, SaveCollection(ctx, store, "things", testDoc{}))

	data, err := store.Load(ctx, "things")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items": []}`, string(data))
	assert.NotContains(t, string(data), "null")
}

func TestLoadCollection_CorruptFileLeavesBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileStore(fs, "/data")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(fs, "/data/reviews.json", []byte("not json at all"), 0o600))

	_, err = LoadCollection[[]map[string]any](ctx, store, CollectionReviews, nil)
	require.NoError(t, err)

	backups, err := afero.Glob(fs, "/data/corrupted-reviews-*.json")
	require.NoError(t, err)
	require.Len(t, backups, 1)

	content, err := afero.ReadFile(fs, backups[0])
	require.NoError(t, err)
	assert.Equal(t, "not json at all", string(content))
}

func TestValidateRecord(t *testing.T) {
	type record struct {
		ID   string `validate:"required"`
		Rate int    `validate:"gte=0,lte=10"`
	}

	assert.NoError(t, ValidateRecord(record{ID: "x", Rate: 5}))
	assert.ErrorIs(t, ValidateRecord(record{Rate: 5}), ErrInvalidRecord)
	assert.ErrorIs(t, ValidateRecord(record{ID: "x", Rate: 11}), ErrInvalidRecord)
}
