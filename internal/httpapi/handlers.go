package httpapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/csvimport"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/reporting"
	"bjbyte/backend/internal/service"
)

// Catalog

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleSetProductActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, r, apperror.NewValidation("active is required"))
		return
	}
	product, err := a.service.SetProductActive(r.Context(), r.PathValue("id"), *req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleSetProductSuppliers(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductSuppliersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := a.service.SetProductSuppliers(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

// handleImportProducts accepts a multipart "file" field or a raw CSV body. The format comes from
// the "format" query parameter; "auto" picks it from the column count of the first record.
func (a *API) handleImportProducts(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	format, err := resolveFormat(r.URL.Query().Get("format"), data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := a.service.ImportProducts(r.Context(), bytes.NewReader(data), format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func readUpload(r *http.Request) ([]byte, error) {
	var src io.Reader = r.Body
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, apperror.NewInvalidInput("multipart field \"file\" is required").WithCause(err)
		}
		defer file.Close()
		src = file
	}
	data, err := io.ReadAll(src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperror.NewInvalidInput("file too large")
		}
		return nil, apperror.NewInvalidInput("could not read upload").WithCause(err)
	}
	return data, nil
}

func resolveFormat(raw string, data []byte) (csvimport.Format, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.EqualFold(raw, "auto") {
		format, err := csvimport.ParseFormat(raw)
		if err != nil {
			return csvimport.FormatUnknown, apperror.NewInvalidInput(err.Error()).WithCause(err)
		}
		return format, nil
	}

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	first, err := reader.Read()
	if err != nil {
		return csvimport.FormatUnknown, apperror.NewInvalidInput("could not detect csv format").WithCause(csvimport.ErrUnknownFormat)
	}
	format := csvimport.DetectFormat(first)
	if format == csvimport.FormatUnknown {
		return format, apperror.NewInvalidInput("could not detect csv format").
			WithDetail("columns", len(first)).
			WithCause(csvimport.ErrUnknownFormat)
	}
	return format, nil
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
}

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := a.service.ListClients(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req domain.ClientCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := a.service.CreateClient(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"client": client})
}

func (a *API) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := a.service.GetClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

// Employees

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := a.auth.ListEmployees(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	employee, err := a.auth.CreateEmployee(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"employee": employee})
}

func (a *API) handleEmployeeTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := a.service.EmployeeTotals(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
}

// Stock

func (a *API) handleListStock(w http.ResponseWriter, r *http.Request) {
	lines, err := a.service.ListStockLines(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_lines": lines})
}

func (a *API) handleAddStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockIntakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	line, err := a.service.AddStock(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stock_line": line})
}

// Sales

func (a *API) handleRegisterSale(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterSaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	sale, err := a.service.RegisterSale(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func saleFilterFromQuery(r *http.Request) domain.SaleFilter {
	q := r.URL.Query()
	return domain.SaleFilter{
		Product:  q.Get("product"),
		Employee: q.Get("employee"),
		Date:     q.Get("date"),
	}
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context(), saleFilterFromQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSaleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := a.service.ListSaleDates(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleReverseSale(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.service.ReverseSale(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reversed": id})
}

func (a *API) handleSaleInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pdf, err := a.service.SaleInvoicePDF(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeFile(w, "application/pdf", "factura-"+id+".pdf", pdf)
}

func (a *API) handleEmailInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.service.EmailInvoice(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": id})
}

func (a *API) handleExportSales(w http.ResponseWriter, r *http.Request) {
	data, err := a.service.SalesXLSX(r.Context(), saleFilterFromQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "ventas.xlsx", data)
}

// Reports

func reportFilterFromQuery(r *http.Request) reporting.Filter {
	q := r.URL.Query()
	return reporting.Filter{
		Product:  strings.TrimSpace(q.Get("product")),
		Employee: strings.TrimSpace(q.Get("employee")),
		Date:     strings.TrimSpace(q.Get("date")),
	}
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.BuildSalesReport(r.Context(), reportFilterFromQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleSalesReportPDF(w http.ResponseWriter, r *http.Request) {
	pdf, err := a.service.SalesReportPDF(r.Context(), reportFilterFromQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeFile(w, "application/pdf", "reporte-ventas.pdf", pdf)
}

func (a *API) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.service.SendEmail(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"recipients": len(req.To)})
}

// Exchange

func (a *API) handleExchangeRates(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.ExchangeStatus()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil {
		writeError(w, r, apperror.NewInvalidInput("amount must be a number").WithDetail("amount", q.Get("amount")))
		return
	}
	currency := strings.TrimSpace(q.Get("currency"))
	if currency == "" {
		writeError(w, r, apperror.NewInvalidInput("currency is required"))
		return
	}
	conversion, err := a.service.ConvertFromCOP(amount, currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversion)
}
