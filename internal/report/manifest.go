// Package report renders spreadsheet exports.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/xenking/vconn/internal/domain/delivery"
)

// ManifestSheet is the name of the only sheet in a manifest workbook.
const ManifestSheet = "Manifest"

const manifestTableRow = 7

var manifestHeaders = []string{
	"Order",
	"Vendor",
	"Business",
	"Address",
	"Phone",
	"Product",
	"Quantity",
	"Amount",
	"Status",
}

var _ delivery.ManifestWriter = (*ManifestGenerator)(nil)

// ManifestGenerator writes delivery manifests as XLSX workbooks.
type ManifestGenerator struct{}

// NewManifestGenerator returns a ManifestGenerator.
func NewManifestGenerator() *ManifestGenerator {
	return &ManifestGenerator{}
}

// WriteManifest writes m to w as a single-sheet workbook: a summary block
// followed by one row per order.
func (g *ManifestGenerator) WriteManifest(w io.Writer, m delivery.Manifest) error {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	if err := file.SetSheetName("Sheet1", ManifestSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	set := func(cell string, value any) {
		keep(file.SetCellValue(ManifestSheet, cell, value))
	}

	quantity, amount := totals(m)
	set("A1", "Wholesaler")
	set("B1", m.WholesalerID)
	set("A2", "Delivery date")
	set("B2", m.Date.Format(time.DateOnly))
	set("A3", "Orders")
	set("B3", len(m.Orders))
	set("A4", "Total quantity")
	set("B4", quantity)
	set("A5", "Total amount")
	set("B5", amount.StringFixed(2))

	for i, header := range manifestHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, manifestTableRow)
		keep(err)
		set(cell, header)
	}

	for i, o := range m.Orders {
		row := manifestTableRow + 1 + i
		set(fmt.Sprintf("A%d", row), o.ID)
		set(fmt.Sprintf("B%d", row), o.VendorName)
		set(fmt.Sprintf("C%d", row), o.VendorBusiness)
		set(fmt.Sprintf("D%d", row), o.VendorAddress)
		set(fmt.Sprintf("E%d", row), o.VendorPhone)
		set(fmt.Sprintf("F%d", row), o.ProductName)
		set(fmt.Sprintf("G%d", row), o.Quantity)
		set(fmt.Sprintf("H%d", row), o.TotalAmount.StringFixed(2))
		set(fmt.Sprintf("I%d", row), string(o.Status))
	}

	keep(file.SetColWidth(ManifestSheet, "A", "A", 38))
	keep(file.SetColWidth(ManifestSheet, "B", "C", 24))
	keep(file.SetColWidth(ManifestSheet, "D", "D", 40))
	keep(file.SetColWidth(ManifestSheet, "E", "F", 18))
	keep(file.SetColWidth(ManifestSheet, "G", "I", 12))
	if firstErr != nil {
		return fmt.Errorf("fill manifest: %w", firstErr)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func totals(m delivery.Manifest) (int, decimal.Decimal) {
	var (
		quantity int
		amount   = decimal.Zero
	)
	for _, o := range m.Orders {
		quantity += o.Quantity
		amount = amount.Add(o.TotalAmount)
	}
	return quantity, amount
}
