// Package document renders invoices and sales reports as PDF (HTML printed by headless Chrome)
// and sales listings as XLSX.
package document

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/reporting"
)

//go:embed templates/*.html
var templateFS embed.FS

// PDFRenderer prints a complete HTML document to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Company is the issuer block printed on every document.
type Company struct {
	Name    string
	NIT     string
	Address string
	Phone   string
}

type Renderer struct {
	company   Company
	pdf       PDFRenderer
	templates *template.Template
	printer   *message.Printer
	now       func() time.Time
}

func NewRenderer(company Company, pdf PDFRenderer) (*Renderer, error) {
	r := &Renderer{
		company: company,
		pdf:     pdf,
		printer: message.NewPrinter(language.MustParse("es-CO")),
		now:     time.Now,
	}
	tmpl, err := template.New("documents").Funcs(template.FuncMap{
		"money":   r.FormatMoney,
		"percent": formatPercent,
		"date":    func(t time.Time) string { return t.Format("2006-01-02 15:04") },
		"buyer":   buyerName,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r.templates = tmpl
	return r, nil
}

// FormatMoney renders an amount the way Colombian receipts print it, e.g. "$ 1.234.567,50".
func (r *Renderer) FormatMoney(m domain.Money) string {
	return r.printer.Sprintf("$ %v", number.Decimal(m.Round(domain.MoneyScale).InexactFloat64(), number.Scale(domain.MoneyScale)))
}

func formatPercent(p *domain.Money) string {
	if p == nil {
		return "N/A"
	}
	return p.StringFixed(2) + " %"
}

func buyerName(sale domain.Sale) string {
	if sale.BuyerName == "" {
		return domain.DefaultBuyerName
	}
	return sale.BuyerName
}

// InvoiceQRText is the payload encoded in the invoice QR.
func InvoiceQRText(sale domain.Sale) string {
	return fmt.Sprintf("Factura:%s|Fecha:%s|Total:%s", sale.ID, sale.CreatedAt.Format("2006-01-02 15:04"), sale.Total.StringFixed(2))
}

// InvoiceQR returns the invoice QR as PNG.
func InvoiceQR(sale domain.Sale) ([]byte, error) {
	return qrcode.Encode(InvoiceQRText(sale), qrcode.Medium, 256)
}

type invoiceView struct {
	Company  Company
	Sale     domain.Sale
	QR       template.URL
	IssuedAt time.Time
}

func (r *Renderer) SaleHTML(sale domain.Sale) (string, error) {
	qr, err := InvoiceQR(sale)
	if err != nil {
		return "", fmt.Errorf("invoice qr: %w", err)
	}
	return r.execute("invoice.html", invoiceView{
		Company:  r.company,
		Sale:     sale,
		QR:       template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(qr)),
		IssuedAt: r.now(),
	})
}

func (r *Renderer) SalePDF(ctx context.Context, sale domain.Sale) ([]byte, error) {
	html, err := r.SaleHTML(sale)
	if err != nil {
		return nil, err
	}
	return r.pdf.RenderHTML(ctx, html)
}

type bucketRow struct {
	Label string
	Count int
}

type reportView struct {
	Company     Company
	Report      reporting.Report
	Buckets     []bucketRow
	GeneratedAt time.Time
}

func (r *Renderer) SalesReportHTML(report reporting.Report) (string, error) {
	return r.execute("report.html", reportView{
		Company: r.company,
		Report:  report,
		Buckets: []bucketRow{
			{"0 - 10 %", report.Buckets.Under10},
			{"10 - 20 %", report.Buckets.From10To20},
			{"20 - 30 %", report.Buckets.From20To30},
			{"30 % o más", report.Buckets.Over30},
		},
		GeneratedAt: r.now(),
	})
}

func (r *Renderer) SalesReportPDF(ctx context.Context, report reporting.Report) ([]byte, error) {
	html, err := r.SalesReportHTML(report)
	if err != nil {
		return nil, err
	}
	return r.pdf.RenderHTML(ctx, html)
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
