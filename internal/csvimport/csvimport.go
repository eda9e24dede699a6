// Package csvimport parses product catalogs from CSV. Each layout has its own parser and a
// file is accepted only when every row is valid.
package csvimport

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"bjbyte/backend/internal/domain"
)

var (
	ErrEmptyFile       = errors.New("csv file is empty")
	ErrInvalidEncoding = errors.New("csv file is not valid UTF-8")
	ErrUnknownFormat   = errors.New("unknown csv format")
)

// Format names a supported column layout.
type Format int

const (
	FormatUnknown Format = iota
	// FormatBasic: id, name, description, price
	FormatBasic
	// FormatWithSuppliers: id, name, suppliers, description, price, base_price
	FormatWithSuppliers
	// FormatFull: name, description, price, base_price, profit, code, exempt, active
	FormatFull
)

func (f Format) String() string {
	switch f {
	case FormatBasic:
		return "basic"
	case FormatWithSuppliers:
		return "with_suppliers"
	case FormatFull:
		return "full"
	default:
		return "unknown"
	}
}

// Columns is the number of fields a row of this format carries.
func (f Format) Columns() int {
	switch f {
	case FormatBasic:
		return 4
	case FormatWithSuppliers:
		return 6
	case FormatFull:
		return 8
	default:
		return 0
	}
}

// ParseFormat maps a name or a column count ("4", "6", "8") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "4":
		return FormatBasic, nil
	case "with_suppliers", "6":
		return FormatWithSuppliers, nil
	case "full", "8":
		return FormatFull, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat guesses the format from the column count of one record. Callers must opt in;
// Parse never sniffs.
func DetectFormat(record []string) Format {
	switch len(record) {
	case 4:
		return FormatBasic
	case 6:
		return FormatWithSuppliers
	case 8:
		return FormatFull
	default:
		return FormatUnknown
	}
}

// RowError describes one invalid row. Line is the 1-based record number, header included.
type RowError struct {
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("line %d, %s: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// RowErrors is returned when any row fails validation.
type RowErrors []RowError

func (e RowErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d invalid rows; first: %s", len(e), e[0].Error())
}

type rowParser func(line int, fields []string) (domain.Product, []RowError)

var parsers = map[Format]rowParser{
	FormatBasic:         parseBasic,
	FormatWithSuppliers: parseWithSuppliers,
	FormatFull:          parseFull,
}

// Parse reads every record as format. A first row whose first cell is "id", "nombre" or "name"
// is treated as a header and skipped. Either all products or a RowErrors is returned.
func Parse(r io.Reader, format Format) ([]domain.Product, error) {
	parse, ok := parsers[format]
	if !ok {
		return nil, ErrUnknownFormat
	}

	reader, err := newReader(r)
	if err != nil {
		return nil, err
	}

	var (
		products []domain.Product
		rowErrs  RowErrors
		line     int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Message: err.Error()})
			continue
		}
		if isBlank(record) {
			continue
		}
		if line == 1 && isHeader(record) {
			continue
		}
		if len(record) != format.Columns() {
			rowErrs = append(rowErrs, RowError{
				Line:    line,
				Message: fmt.Sprintf("expected %d columns, got %d", format.Columns(), len(record)),
			})
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		product, errs := parse(line, record)
		if len(errs) > 0 {
			rowErrs = append(rowErrs, errs...)
			continue
		}
		products = append(products, product)
	}

	if len(rowErrs) > 0 {
		return nil, rowErrs
	}
	if len(products) == 0 {
		return nil, ErrEmptyFile
	}
	return products, nil
}

func newReader(r io.Reader) (*csv.Reader, error) {
	buf := bufio.NewReader(r)

	bom, err := buf.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	head, err := buf.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyFile
	}
	if !utf8.Valid(trimPartialRune(head)) {
		return nil, ErrInvalidEncoding
	}

	reader := csv.NewReader(buf)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return reader, nil
}

// trimPartialRune drops a multi-byte rune cut off by the peek window.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

func isHeader(record []string) bool {
	switch strings.ToLower(strings.TrimSpace(record[0])) {
	case "id", "nombre", "name":
		return true
	default:
		return false
	}
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func parseBasic(line int, f []string) (domain.Product, []RowError) {
	var errs []RowError
	name := requireText(line, "name", f[1], &errs)
	price := requireMoney(line, "price", f[3], &errs)
	if len(errs) > 0 {
		return domain.Product{}, errs
	}
	return domain.Product{
		Name:        name,
		Description: f[2],
		Price:       price,
		BasePrice:   price,
		Profit:      decimal.Zero,
		Active:      true,
	}, nil
}

func parseWithSuppliers(line int, f []string) (domain.Product, []RowError) {
	var errs []RowError
	name := requireText(line, "name", f[1], &errs)
	price := requireMoney(line, "price", f[4], &errs)
	base := requireMoney(line, "base_price", f[5], &errs)
	if len(errs) > 0 {
		return domain.Product{}, errs
	}
	// f[2] lists supplier names; suppliers are linked separately by id.
	return domain.Product{
		Name:        name,
		Description: f[3],
		Price:       price,
		BasePrice:   base,
		Profit:      price.Sub(base),
		Active:      true,
	}, nil
}

func parseFull(line int, f []string) (domain.Product, []RowError) {
	var errs []RowError
	name := requireText(line, "name", f[0], &errs)
	price := requireMoney(line, "price", f[2], &errs)
	base := requireMoney(line, "base_price", f[3], &errs)
	profit := price.Sub(base)
	if f[4] != "" {
		parsed, err := ParseDecimal(f[4])
		if err != nil {
			errs = append(errs, RowError{Line: line, Column: "profit", Message: err.Error()})
		} else {
			profit = domain.RoundMoney(parsed)
		}
	}
	if len(errs) > 0 {
		return domain.Product{}, errs
	}
	return domain.Product{
		Name:        name,
		Description: f[1],
		Price:       price,
		BasePrice:   base,
		Profit:      profit,
		Code:        f[5],
		Exempt:      ParseBool(f[6]),
		Active:      ParseBool(f[7]),
	}, nil
}

func requireText(line int, column, value string, errs *[]RowError) string {
	if value == "" {
		*errs = append(*errs, RowError{Line: line, Column: column, Message: "is required"})
	}
	return value
}

func requireMoney(line int, column, value string, errs *[]RowError) domain.Money {
	if value == "" {
		*errs = append(*errs, RowError{Line: line, Column: column, Message: "is required"})
		return decimal.Zero
	}
	d, err := ParseDecimal(value)
	if err != nil {
		*errs = append(*errs, RowError{Line: line, Column: column, Message: err.Error()})
		return decimal.Zero
	}
	if d.IsNegative() {
		*errs = append(*errs, RowError{Line: line, Column: column, Message: "must not be negative"})
		return decimal.Zero
	}
	return domain.RoundMoney(d)
}

// ParseDecimal accepts "1234.56", "1.234,56" and "1234,56".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	return d, nil
}

// ParseBool is true for true, si, sí, 1, yes, y and verdadero; anything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "si", "sí", "1", "yes", "y", "verdadero":
		return true
	default:
		return false
	}
}
