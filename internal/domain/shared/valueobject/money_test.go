package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyArithmetic(t *testing.T) {
	t.Run("add and subtract within the same currency", func(t *testing.T) {
		a := NewMoneyUSDFromFloat(10.50)
		b := NewMoneyUSDFromFloat(4.25)

		sum, err := a.Add(b)
		require.NoError(t, err)
		assert.Equal(t, "14.75", sum.StringFixed(2))

		diff, err := a.Subtract(b)
		require.NoError(t, err)
		assert.Equal(t, "6.25", diff.StringFixed(2))
	})

	t.Run("mixed currencies fail", func(t *testing.T) {
		usd := NewMoneyUSDFromFloat(10)
		eur, err := NewMoney(decimal.NewFromInt(10), EUR)
		require.NoError(t, err)

		_, err = usd.Add(eur)
		assert.Error(t, err)

		_, err = usd.LessThan(eur)
		assert.Error(t, err)
	})

	t.Run("multiply keeps exact decimals", func(t *testing.T) {
		rate := NewMoneyUSDFromFloat(2.00)

		cost := rate.Multiply(decimal.NewFromFloat(1.5))
		assert.Equal(t, "3.00", cost.StringFixed(2))

		cost = rate.MultiplyByInt(3)
		assert.Equal(t, "6.00", cost.StringFixed(2))
	})

	t.Run("comparisons and predicates", func(t *testing.T) {
		a := NewMoneyUSDFromFloat(1.00)
		b := NewMoneyUSDFromFloat(2.00)

		less, err := a.LessThan(b)
		require.NoError(t, err)
		assert.True(t, less)

		gte, err := b.GreaterThanOrEqual(a)
		require.NoError(t, err)
		assert.True(t, gte)

		assert.True(t, ZeroUSD().IsZero())
		assert.True(t, a.IsPositive())
		assert.True(t, NewMoneyUSDFromFloat(-1).IsNegative())
		assert.True(t, a.Equals(mustUSD(t, "1.00")))
	})
}

func mustUSD(t *testing.T, s string) Money {
	t.Helper()
	m, err := NewMoneyUSDFromString(s)
	require.NoError(t, err)
	return m
}

func TestMoneySerialization(t *testing.T) {
	t.Run("JSON round trip", func(t *testing.T) {
		m := NewMoneyUSDFromFloat(4.00)

		data, err := json.Marshal(m)
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":"4.00","currency":"USD"}`, string(data))

		var decoded Money
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, m.Equals(decoded))
	})

	t.Run("unmarshal defaults missing currency to USD", func(t *testing.T) {
		var m Money
		require.NoError(t, json.Unmarshal([]byte(`{"amount":"2.50"}`), &m))
		assert.Equal(t, USD, m.Currency())
	})

	t.Run("database scan accepts common driver types", func(t *testing.T) {
		var m Money
		require.NoError(t, m.Scan("3.50"))
		assert.Equal(t, "3.50", m.StringFixed(2))

		require.NoError(t, m.Scan([]byte("4.25")))
		assert.Equal(t, "4.25", m.StringFixed(2))

		require.NoError(t, m.Scan(float64(5.5)))
		assert.Equal(t, "5.50", m.StringFixed(2))

		require.NoError(t, m.Scan(nil))
		assert.True(t, m.IsZero())

		assert.Error(t, m.Scan(42))
	})
}
