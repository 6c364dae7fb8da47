package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("accepts two decimal places", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("100.50"))
		require.NoError(t, err)
		assert.Equal(t, "100.50", m.String())
	})

	t.Run("accepts whole amounts", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromInt(80))
		require.NoError(t, err)
		assert.Equal(t, "80.00", m.String())
	})

	t.Run("rejects sub-cent precision", func(t *testing.T) {
		_, err := NewMoney(decimal.RequireFromString("10.005"))
		assert.ErrorIs(t, err, ErrTooManyDecimals)
	})
}

func TestNewPositiveMoney(t *testing.T) {
	_, err := NewPositiveMoney(decimal.Zero)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = NewPositiveMoney(decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	m, err := NewPositiveMoney(decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.True(t, m.IsPositive())
}

func TestNewMoneyFromString(t *testing.T) {
	_, err := NewMoneyFromString("not-a-number")
	assert.Error(t, err)

	m, err := NewMoneyFromString("19.9")
	require.NoError(t, err)
	assert.Equal(t, "19.90", m.String())
}

func TestMoneyArithmetic(t *testing.T) {
	a := MustMoney("50.00")
	b := MustMoney("30.25")

	assert.Equal(t, "80.25", a.Add(b).String())
	assert.Equal(t, "19.75", a.Subtract(b).String())
	assert.True(t, NewMoneyFromCents(5000).Equals(a))
	assert.True(t, Zero().IsZero())
}

func TestMoneyJSON(t *testing.T) {
	t.Run("marshals as fixed string", func(t *testing.T) {
		data, err := json.Marshal(MustMoney("7.5"))
		require.NoError(t, err)
		assert.JSONEq(t, `"7.50"`, string(data))
	})

	t.Run("unmarshals number and string", func(t *testing.T) {
		var fromNumber, fromString Money
		require.NoError(t, json.Unmarshal([]byte(`120`), &fromNumber))
		require.NoError(t, json.Unmarshal([]byte(`"120.00"`), &fromString))
		assert.True(t, fromNumber.Equals(fromString))
	})

	t.Run("rejects sub-cent values", func(t *testing.T) {
		var m Money
		err := json.Unmarshal([]byte(`"1.234"`), &m)
		assert.ErrorIs(t, err, ErrTooManyDecimals)
	})
}
