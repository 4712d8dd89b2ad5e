package num_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/overtimeamm/internal/num"
)

func TestMulTruncates(t *testing.T) {
	got := num.Mul(num.MustParse("0.333333333333333333"), num.MustParse("3"))
	assert.Equal(t, "0.999999999999999999", got.String())

	got = num.Mul(num.MustParse("0.1234567890123456789"), num.One)
	assert.Equal(t, "0.123456789012345678", got.String())
}

func TestDiv(t *testing.T) {
	assert.Equal(t, "0.333333333333333333", num.Div(num.One, num.MustParse("3")).String())
	assert.True(t, num.Div(num.One, num.Zero).IsZero())
	assert.Equal(t, "0.333333333333333334", num.DivUp(num.One, num.MustParse("3")).String())
	assert.Equal(t, "2", num.DivUp(num.MustParse("4"), num.Two).String())
}

func TestPow(t *testing.T) {
	assert.Equal(t, "47.045881", num.Pow(num.MustParse("1.9"), 6).String())
	assert.Equal(t, "1", num.Pow(num.MustParse("1.9"), 0).String())
}

func TestExp(t *testing.T) {
	assert.Equal(t, "1", num.Exp(num.Zero).String())
	assert.InDelta(t, 0.367879441171442321, num.Exp(num.MustParse("-1")).InexactFloat64(), 1e-15)
	assert.InDelta(t, 2.718281828459045235, num.Exp(num.One).InexactFloat64(), 1e-15)
}

func TestClamp(t *testing.T) {
	lo, hi := num.MustParse("0.01"), num.MustParse("0.2")
	assert.Equal(t, "0.01", num.Clamp(num.MustParse("-1"), lo, hi).String())
	assert.Equal(t, "0.2", num.Clamp(num.MustParse("5"), lo, hi).String())
	assert.Equal(t, "0.05", num.Clamp(num.MustParse("0.05"), lo, hi).String())
	assert.True(t, num.Floor(num.MustParse("-3")).IsZero())
}
