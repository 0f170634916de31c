package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyumpad/gobilling/app/models"
)

type nopAdapter struct{ name string }

func (a nopAdapter) Name() string { return a.name }

func entry(id uint, name string, isDefault bool) Entry {
	return Entry{
		Model:   models.Gateway{ID: id, Name: name, IsDefault: isDefault},
		Adapter: nopAdapter{name: name},
	}
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"Empty", nil},
		{"Duplicate name", []Entry{entry(1, "stripe", false), entry(2, "stripe", false)}},
		{"Two defaults", []Entry{entry(1, "a", true), entry(2, "b", true)}},
		{"Nil adapter", []Entry{{Model: models.Gateway{ID: 1, Name: "a"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.entries...)
			assert.Error(t, err)
		})
	}
}

func TestRegistryDefaultResolution(t *testing.T) {
	// Flagged default wins over registration order.
	r, err := NewRegistry(entry(1, "a", false), entry(2, "b", true))
	require.NoError(t, err)
	assert.Equal(t, "b", r.Default().Model.Name)

	// Without a flag the first registered entry is the default.
	r, err = NewRegistry(entry(1, "a", false), entry(2, "b", false))
	require.NoError(t, err)
	assert.Equal(t, "a", r.Default().Model.Name)
}

func TestRegistryResolve(t *testing.T) {
	r, err := NewRegistry(entry(1, "a", false), entry(2, "b", true))
	require.NoError(t, err)

	e, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "b", e.Model.Name)

	e, err = r.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, "a", e.Model.Name)

	_, err = r.Resolve("missing")
	assert.Error(t, err)

	_, ok := r.Get("a")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryEntriesIsACopy(t *testing.T) {
	r, err := NewRegistry(entry(1, "a", true))
	require.NoError(t, err)

	entries := r.Entries()
	entries[0] = entry(9, "mutated", false)

	assert.Equal(t, "a", r.Entries()[0].Model.Name)
}

func TestCardHelpers(t *testing.T) {
	card := Card{FirstName: "Ada", LastName: "Lovelace", Number: "4242424242424242"}
	assert.Equal(t, "Ada Lovelace", card.Name())
	assert.Equal(t, "4242", card.LastFour())

	assert.Equal(t, "Ada", Card{FirstName: "Ada"}.Name())
	assert.Equal(t, "Lovelace", Card{LastName: "Lovelace"}.Name())
	assert.Equal(t, "123", Card{Number: "123"}.LastFour())
}
