package format

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2500", "2,500.00"},
		{"1066.666666", "1,066.67"},
		{"0.5", "0.50"},
		{"-3500", "-3,500.00"},
		{"1234567.891", "1,234,567.89"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Price(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestSignedAndPercent(t *testing.T) {
	assert.Equal(t, "+3,500.00", Signed(decimal.NewFromInt(3500)))
	assert.Equal(t, "-12.00", Signed(decimal.NewFromInt(-12)))
	assert.Equal(t, "+21.88%", Percent(decimal.RequireFromString("21.875")))
	assert.Equal(t, "-4.50%", Percent(decimal.RequireFromString("-4.5")))
	assert.Equal(t, "+0.00%", Percent(decimal.Zero))
}

func TestSigned_NegativeRoundingToZero(t *testing.T) {
	assert.Equal(t, "+0.00", Signed(decimal.Zero))
	assert.Equal(t, "+0.00", Signed(decimal.RequireFromString("-0.004")))
	assert.Equal(t, "-0.01", Signed(decimal.RequireFromString("-0.005")))
	assert.Equal(t, "+0.00%", Percent(decimal.RequireFromString("-0.004")))
}

func TestQuantity(t *testing.T) {
	assert.Equal(t, "1,500", Quantity(1500))
	assert.Equal(t, "15", Quantity(15))
}
