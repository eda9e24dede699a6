// Package reporting folds committed sales into revenue, employee and product margin figures.
package reporting

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/logger"
)

var hundred = decimal.NewFromInt(100)

// Filter fields are conjunctive and case-insensitive. Empty fields match everything.
type Filter struct {
	Product  string `json:"product,omitempty"`
	Employee string `json:"employee,omitempty"`
	Date     string `json:"date,omitempty"` // yyyy-mm-dd prefix
}

type EmployeeRow struct {
	Name         string       `json:"name"`
	Revenue      domain.Money `json:"revenue"`
	Transactions int          `json:"transactions"`
}

type ProductRow struct {
	ProductID       string        `json:"product_id"`
	Name            string        `json:"name"`
	Units           int           `json:"units"`
	Revenue         domain.Money  `json:"revenue"`
	AvgPrice        domain.Money  `json:"avg_price"`
	BasePrice       domain.Money  `json:"base_price"`
	EstimatedMargin domain.Money  `json:"estimated_margin"`
	MarginPercent   *domain.Money `json:"margin_percent,omitempty"`
	active          bool
}

// MarginBuckets counts products by margin percent over base price.
type MarginBuckets struct {
	Under10    int `json:"under_10"`
	From10To20 int `json:"from_10_to_20"`
	From20To30 int `json:"from_20_to_30"`
	Over30     int `json:"over_30"`
}

type Report struct {
	Filter                Filter        `json:"filter"`
	TotalRevenue          domain.Money  `json:"total_revenue"`
	TotalQuantity         int           `json:"total_quantity"`
	Transactions          int           `json:"transactions"`
	AverageTicket         domain.Money  `json:"average_ticket"`
	TotalCost             domain.Money  `json:"total_cost"`
	TotalProfit           domain.Money  `json:"total_profit"`
	WeightedMarginPercent domain.Money  `json:"weighted_margin_percent"`
	Employees             []EmployeeRow `json:"employees"`
	Products              []ProductRow  `json:"products"`
	Buckets               MarginBuckets `json:"margin_buckets"`
	TopMarginProduct      *ProductRow   `json:"top_margin_product,omitempty"`
	SkippedLines          int           `json:"skipped_lines"`
}

// Matches reports whether sale passes every non-empty filter field.
func (f Filter) Matches(sale domain.Sale) bool {
	if employee := fold(f.Employee); employee != "" {
		if !strings.Contains(fold(sale.EmployeeName), employee) {
			return false
		}
	}
	if date := strings.TrimSpace(f.Date); date != "" {
		if !strings.HasPrefix(sale.CreatedAt.Format(time.DateOnly), date) {
			return false
		}
	}
	if product := fold(f.Product); product != "" {
		return slices.ContainsFunc(sale.Lines, func(line domain.SaleLine) bool {
			return strings.Contains(fold(line.ProductName), product)
		})
	}
	return true
}

// fold builds a new Caser per call; Casers are stateful.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Aggregate is a read-only fold. A line with an unknown product or a non-positive quantity is
// skipped and logged; the sale total still counts toward revenue.
func Aggregate(ctx context.Context, sales []domain.Sale, products map[string]domain.Product, filter Filter) Report {
	report := Report{
		Filter:                filter,
		TotalRevenue:          decimal.Zero,
		AverageTicket:         decimal.Zero,
		TotalCost:             decimal.Zero,
		TotalProfit:           decimal.Zero,
		WeightedMarginPercent: decimal.Zero,
		Employees:             []EmployeeRow{},
		Products:              []ProductRow{},
	}

	byEmployee := map[string]*EmployeeRow{}
	byProduct := map[string]*ProductRow{}

	for _, sale := range sales {
		if !filter.Matches(sale) {
			continue
		}
		report.Transactions++
		report.TotalRevenue = report.TotalRevenue.Add(sale.Total)

		name := strings.TrimSpace(sale.EmployeeName)
		if name == "" {
			name = domain.UnassignedEmployee
		}
		row, ok := byEmployee[name]
		if !ok {
			row = &EmployeeRow{Name: name, Revenue: decimal.Zero}
			byEmployee[name] = row
		}
		row.Revenue = row.Revenue.Add(sale.Total)
		row.Transactions++

		for _, line := range sale.Lines {
			product, known := products[line.ProductID]
			if !known || line.Quantity <= 0 {
				report.SkippedLines++
				logger.Warn(ctx, "report line skipped",
					"sale_id", sale.ID,
					"line_id", line.ID,
					"product_id", line.ProductID,
					"quantity", line.Quantity,
					"known_product", known,
				)
				continue
			}
			report.TotalQuantity += line.Quantity

			agg, ok := byProduct[product.ID]
			if !ok {
				agg = &ProductRow{
					ProductID: product.ID,
					Name:      product.Name,
					Revenue:   decimal.Zero,
					BasePrice: product.BasePrice,
					active:    product.Active,
				}
				byProduct[product.ID] = agg
			}
			agg.Units += line.Quantity
			agg.Revenue = agg.Revenue.Add(line.Total)
		}
	}

	for _, row := range byEmployee {
		report.Employees = append(report.Employees, *row)
	}
	slices.SortFunc(report.Employees, func(a, b EmployeeRow) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	for _, agg := range byProduct {
		units := decimal.NewFromInt(int64(agg.Units))
		agg.AvgPrice = agg.Revenue.DivRound(units, domain.MoneyScale)
		agg.EstimatedMargin = domain.RoundMoney(agg.AvgPrice.Sub(agg.BasePrice).Mul(units))
		if agg.BasePrice.IsPositive() {
			pct := agg.AvgPrice.Sub(agg.BasePrice).Mul(hundred).DivRound(agg.BasePrice, domain.MoneyScale)
			agg.MarginPercent = &pct
		}
		report.TotalCost = report.TotalCost.Add(agg.BasePrice.Mul(units))
		report.Products = append(report.Products, *agg)
	}
	slices.SortFunc(report.Products, func(a, b ProductRow) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	report.TotalCost = domain.RoundMoney(report.TotalCost)
	report.TotalProfit = report.TotalRevenue.Sub(report.TotalCost)
	if report.Transactions > 0 {
		report.AverageTicket = report.TotalRevenue.DivRound(decimal.NewFromInt(int64(report.Transactions)), domain.MoneyScale)
	}
	if report.TotalRevenue.IsPositive() {
		report.WeightedMarginPercent = report.TotalProfit.Mul(hundred).DivRound(report.TotalRevenue, domain.MoneyScale)
	}

	report.Buckets, report.TopMarginProduct = marginStats(report.Products)
	return report
}

// marginStats buckets active products with a positive base price and picks the highest margin
// among them.
// Negative margins fall in no bucket.
func marginStats(products []ProductRow) (MarginBuckets, *ProductRow) {
	var (
		buckets MarginBuckets
		top     *ProductRow
	)
	ten, twenty, thirty := decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.NewFromInt(30)
	for i := range products {
		p := &products[i]
		if p.MarginPercent == nil || !p.active {
			continue
		}
		if top == nil || p.MarginPercent.GreaterThan(*top.MarginPercent) {
			top = p
		}
		pct := *p.MarginPercent
		switch {
		case pct.IsNegative():
		case pct.LessThan(ten):
			buckets.Under10++
		case pct.LessThan(twenty):
			buckets.From10To20++
		case pct.LessThan(thirty):
			buckets.From20To30++
		default:
			buckets.Over30++
		}
	}
	if top == nil {
		return buckets, nil
	}
	best := *top
	return buckets, &best
}
