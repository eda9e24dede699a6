package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bjbyte/backend/internal/domain"
)

func TestComputeLineTaxed(t *testing.T) {
	got := ComputeLine(domain.MustMoney("100"), 3, false)

	assert.True(t, got.Subtotal.Equal(domain.MustMoney("300")), "subtotal %s", got.Subtotal)
	assert.True(t, got.Tax.Equal(domain.MustMoney("57")), "tax %s", got.Tax)
	assert.True(t, got.Total.Equal(domain.MustMoney("357")), "total %s", got.Total)
}

func TestComputeLineExempt(t *testing.T) {
	got := ComputeLine(domain.MustMoney("50"), 4, true)

	assert.True(t, got.Subtotal.Equal(domain.MustMoney("200")))
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Total.Equal(domain.MustMoney("200")))
}

func TestComputeLineRoundsTaxHalfUp(t *testing.T) {
	cases := []struct {
		price string
		qty   int
		tax   string
	}{
		{"0.50", 1, "0.10"},      // 0.095
		{"12.35", 3, "7.04"},     // 37.05 * 0.19 = 7.0395
		{"19.99", 7, "26.59"},    // 139.93 * 0.19 = 26.5867
		{"1234.56", 2, "469.13"}, // 2469.12 * 0.19 = 469.1328
	}
	for _, tc := range cases {
		got := ComputeLine(domain.MustMoney(tc.price), tc.qty, false)
		expectedSubtotal := domain.MustMoney(tc.price).Mul(decimal.NewFromInt(int64(tc.qty)))
		assert.True(t, got.Subtotal.Equal(expectedSubtotal), "%s x %d subtotal %s", tc.price, tc.qty, got.Subtotal)
		assert.True(t, got.Tax.Equal(domain.MustMoney(tc.tax)), "%s x %d tax %s", tc.price, tc.qty, got.Tax)
		assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax)))
	}
}

func TestComputeLineTotalIsSubtotalPlusTax(t *testing.T) {
	for price := 1; price <= 500; price += 37 {
		for qty := 1; qty <= 9; qty++ {
			unit := decimal.New(int64(price), -1)
			got := ComputeLine(unit, qty, false)
			want := got.Subtotal.Mul(TaxRate).Round(2)
			assert.True(t, got.Tax.Equal(want))
			assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax)))
		}
	}
}

func TestSum(t *testing.T) {
	a := ComputeLine(domain.MustMoney("100"), 3, false)
	b := ComputeLine(domain.MustMoney("50"), 4, true)

	got := Sum(a, b)
	assert.True(t, got.Subtotal.Equal(domain.MustMoney("500")))
	assert.True(t, got.Tax.Equal(domain.MustMoney("57")))
	assert.True(t, got.Total.Equal(domain.MustMoney("557")))
	assert.True(t, Sum().Total.IsZero())
}
