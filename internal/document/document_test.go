package document

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/reporting"
)

type capturePDF struct {
	html string
}

func (c *capturePDF) RenderHTML(_ context.Context, html string) ([]byte, error) {
	c.html = html
	return []byte("%PDF-1.4 fake"), nil
}

func sampleSale() domain.Sale {
	return domain.Sale{
		ID:            "sal-001",
		CreatedAt:     time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC),
		EmployeeName:  "Ana Gomez",
		PaymentMethod: "efectivo",
		Subtotal:      domain.MustMoney("340000"),
		Tax:           domain.MustMoney("17100"),
		Total:         domain.MustMoney("357100"),
		Lines: []domain.SaleLine{
			{ProductName: "Filtro de aire", Quantity: 3, UnitPrice: domain.MustMoney("30000"), Subtotal: domain.MustMoney("90000"), Tax: domain.MustMoney("17100"), Total: domain.MustMoney("107100")},
			{ProductName: "Mano de obra <revisión>", Quantity: 1, UnitPrice: domain.MustMoney("250000"), Subtotal: domain.MustMoney("250000"), Tax: domain.MustMoney("0"), Total: domain.MustMoney("250000")},
		},
	}
}

func newTestRenderer(t *testing.T) (*Renderer, *capturePDF) {
	t.Helper()
	pdf := &capturePDF{}
	r, err := NewRenderer(Company{Name: "TALLER BJ-BYTE", NIT: "900.123.456-7"}, pdf)
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC) }
	return r, pdf
}

func TestSalePDFRendersInvoice(t *testing.T) {
	r, pdf := newTestRenderer(t)

	out, err := r.SalePDF(context.Background(), sampleSale())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	html := pdf.html
	assert.Contains(t, html, "TALLER BJ-BYTE")
	assert.Contains(t, html, "NIT: 900.123.456-7")
	assert.Contains(t, html, domain.DefaultBuyerName)
	assert.Contains(t, html, "TOTAL A PAGAR")
	assert.Contains(t, html, "Mano de obra &lt;revisión&gt;")
	assert.Contains(t, html, `src="data:image/png;base64,`)
	assert.NotContains(t, html, "ZgotmplZ")
}

func TestInvoiceQR(t *testing.T) {
	sale := sampleSale()
	assert.Equal(t, "Factura:sal-001|Fecha:2025-03-01 14:05|Total:357100.00", InvoiceQRText(sale))

	png, err := InvoiceQR(sale)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestFormatMoney(t *testing.T) {
	r, _ := newTestRenderer(t)
	out := r.FormatMoney(domain.MustMoney("1234567.5"))
	assert.True(t, strings.HasPrefix(out, "$ 1"), out)
	assert.True(t, strings.HasSuffix(out, "50"), out)
	assert.Contains(t, out, "234")
}

func TestSalesReportPDF(t *testing.T) {
	r, pdf := newTestRenderer(t)
	pct := domain.MustMoney("25")
	report := reporting.Report{
		Transactions:          2,
		TotalRevenue:          domain.MustMoney("500"),
		WeightedMarginPercent: domain.MustMoney("30.5"),
		Employees:             []reporting.EmployeeRow{{Name: "Luis", Revenue: domain.MustMoney("500"), Transactions: 2}},
		Products:              []reporting.ProductRow{{Name: "Filtro", Units: 5, MarginPercent: &pct}},
		Buckets:               reporting.MarginBuckets{From20To30: 1},
	}

	_, err := r.SalesReportPDF(context.Background(), report)
	require.NoError(t, err)
	assert.Contains(t, pdf.html, "Luis")
	assert.Contains(t, pdf.html, "25.00 %")
	assert.Contains(t, pdf.html, "30.50 %")
	assert.Contains(t, pdf.html, "20 - 30 %")
}

func TestSalesXLSX(t *testing.T) {
	empty := domain.Sale{ID: "sal-002", CreatedAt: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC), Total: domain.MustMoney("15000")}
	data, err := SalesXLSX([]domain.Sale{sampleSale(), empty})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(salesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"ID", "Empleado", "Producto", "Cantidad", "Total", "Fecha"}, rows[0])
	assert.Equal(t, "Filtro de aire", rows[1][2])
	assert.Equal(t, "3", rows[1][3])
	assert.Equal(t, "90000", rows[1][4])
	assert.Equal(t, []string{"sal-002", "N/A", "N/A", "0", "15000", "2025-03-02 09:00:00"}, rows[3])
}
