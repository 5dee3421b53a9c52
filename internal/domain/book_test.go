package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookNormalizeClampsAvailable(t *testing.T) {
	b := &Book{Quantity: 2, AvailableCopies: 5}
	clamped, err := b.Normalize()
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, 2, b.AvailableCopies)
}

func TestBookNormalizeRejectsNegative(t *testing.T) {
	b := &Book{Quantity: 2, AvailableCopies: -1}
	_, err := b.Normalize()
	assert.ErrorIs(t, err, ErrInvariantViolation)

	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "available_copies", inv.Field)
}

func TestBookLendAndRestock(t *testing.T) {
	b := &Book{Quantity: 1, AvailableCopies: 1}
	require.NoError(t, b.Lend())
	assert.ErrorIs(t, b.Lend(), ErrBookUnavailable)
	assert.Equal(t, 0, b.AvailableCopies)

	b.Restock()
	b.Restock()
	assert.Equal(t, 1, b.AvailableCopies, "restock never exceeds quantity")
}

func TestBookChangeQuantity(t *testing.T) {
	b := &Book{Quantity: 3, AvailableCopies: 1}
	b.ChangeQuantity(5)
	assert.Equal(t, 3, b.AvailableCopies)

	b.ChangeQuantity(2)
	_, err := b.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 2, b.AvailableCopies)
}

func TestBookValidate(t *testing.T) {
	ok := &Book{ISBN: " 9780743273565 ", Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", Quantity: 3}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "9780743273565", ok.ISBN)
	assert.Equal(t, GenreFiction, ok.Genre)

	bad := []*Book{
		{ISBN: "12345", Title: "t", Author: "a"},
		{ISBN: "1234567890", Title: "", Author: "a"},
		{ISBN: "1234567890", Title: "t", Author: "a", Genre: "XXX"},
		{ISBN: "1234567890", Title: "t", Author: "a", Quantity: -1},
	}
	for _, b := range bad {
		assert.ErrorIs(t, b.Validate(), ErrInvalidInput)
	}
}
