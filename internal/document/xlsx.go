package document

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"bjbyte/backend/internal/domain"
)

const salesSheet = "Ventas"

var salesHeader = []any{"ID", "Empleado", "Producto", "Cantidad", "Total", "Fecha"}

// SalesXLSX writes one row per sale line. A sale without lines gets a single "N/A" row carrying
// the sale total.
func SalesXLSX(sales []domain.Sale) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", salesSheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(salesSheet, "A1", &salesHeader); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(salesSheet, 1, 1, bold); err != nil {
		return nil, err
	}

	row := 2
	write := func(values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(salesSheet, cell, &values)
	}

	for _, sale := range sales {
		employee := sale.EmployeeName
		if employee == "" {
			employee = "N/A"
		}
		date := sale.CreatedAt.Format("2006-01-02 15:04:05")

		if len(sale.Lines) == 0 {
			if err := write([]any{sale.ID, employee, "N/A", 0, sale.Total.Round(2).InexactFloat64(), date}); err != nil {
				return nil, fmt.Errorf("sale %s: %w", sale.ID, err)
			}
			continue
		}
		for _, line := range sale.Lines {
			if err := write([]any{sale.ID, employee, line.ProductName, line.Quantity, line.Subtotal.Round(2).InexactFloat64(), date}); err != nil {
				return nil, fmt.Errorf("sale %s: %w", sale.ID, err)
			}
		}
	}

	if err := f.SetColWidth(salesSheet, "A", "F", 20); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
