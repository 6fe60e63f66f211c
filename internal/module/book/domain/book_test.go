package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBookID(t *testing.T) {
	id, err := ParseBookID("debt_crisis")
	require.NoError(t, err)
	assert.Equal(t, BookDebtCrisis, id)

	id, err = ParseBookID("capitalism")
	require.NoError(t, err)
	assert.Equal(t, BookCapitalism, id)

	for _, bogus := range []string{"", "bogus_id", "Capitalism", "debt-crisis", "saving_capitalism"} {
		_, err := ParseBookID(bogus)
		assert.ErrorIs(t, err, ErrInvalidBook, bogus)
	}
}

func TestBookID_ZeroValueIsInvalid(t *testing.T) {
	var id BookID
	assert.False(t, id.Valid())

	_, err := json.Marshal(id)
	assert.ErrorIs(t, err, ErrInvalidBook)
}

func TestBookID_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]BookID{"book_id": BookCapitalism})
	require.NoError(t, err)
	assert.JSONEq(t, `{"book_id":"capitalism"}`, string(data))

	var out struct {
		BookID BookID `json:"book_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"book_id":"debt_crisis"}`), &out))
	assert.Equal(t, BookDebtCrisis, out.BookID)

	err = json.Unmarshal([]byte(`{"book_id":"other"}`), &out)
	assert.ErrorIs(t, err, ErrInvalidBook)
}

func TestDefaultCatalog_CoversAllBooks(t *testing.T) {
	catalog := DefaultCatalog()
	for _, id := range AllBooks() {
		book, ok := catalog[id]
		require.True(t, ok, id.String())
		assert.Equal(t, id, book.ID)
		assert.NotEmpty(t, book.IndexDir)
	}
	assert.True(t, catalog[BookCapitalism].StripFootnotes)
	assert.False(t, catalog[BookDebtCrisis].StripFootnotes)
}

func TestCatalog_Lookup(t *testing.T) {
	catalog := DefaultCatalog()

	book, err := catalog.Lookup(BookCapitalism)
	require.NoError(t, err)
	assert.Equal(t, "saving_capitalism", book.IndexDir)
	assert.True(t, book.StripFootnotes)

	_, err = catalog.Lookup(BookID(7))
	assert.ErrorIs(t, err, ErrInvalidBook)

	partial := Catalog{BookDebtCrisis: catalog[BookDebtCrisis]}
	_, err = partial.Lookup(BookCapitalism)
	assert.ErrorIs(t, err, ErrInvalidBook)
	assert.Len(t, partial.Books(), 1)

	books := catalog.Books()
	require.Len(t, books, 2)
	assert.Equal(t, BookDebtCrisis, books[0].ID)
	assert.Equal(t, BookCapitalism, books[1].ID)
}
