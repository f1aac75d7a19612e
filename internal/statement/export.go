package statement

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/jung-kurt/gofpdf"
	pdf "github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// BuildPDF renders a one-page PDF for stmt.
func BuildPDF(stmt *Statement) ([]byte, error) {
	bill := stmt.Bill

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Arial", "", 12)
	doc.AddPage()

	doc.Cell(0, 8, "Electricity Bill")
	doc.Ln(10)
	doc.SetFont("Arial", "", 10)
	doc.Cell(0, 6, fmt.Sprintf("Statement ID: %s", stmt.ID))
	doc.Ln(5)
	doc.Cell(0, 6, fmt.Sprintf("Customer: %s (%s)", stmt.Customer.Name, stmt.Customer.Code))
	doc.Ln(5)
	doc.Cell(0, 6, fmt.Sprintf("Class: %s", title(string(stmt.Customer.Class))))
	doc.Ln(5)
	if stmt.Customer.Address != "" {
		doc.Cell(0, 6, fmt.Sprintf("Address: %s", stmt.Customer.Address))
		doc.Ln(5)
	}
	doc.Cell(0, 6, fmt.Sprintf("Reference month: %s", stmt.Reading.Month))
	doc.Ln(5)
	doc.Cell(0, 6, fmt.Sprintf("Readings: %s -> %s", kwh(stmt.Reading.Previous), kwh(stmt.Reading.Current)))
	doc.Ln(5)
	doc.Cell(0, 6, fmt.Sprintf("Consumption: %s", kwh(bill.ConsumptionKWh)))
	doc.Ln(8)

	doc.SetFont("Arial", "B", 10)
	doc.CellFormat(110, 6, "Description", "1", 0, "L", false, 0, "")
	doc.CellFormat(40, 6, "Amount", "1", 0, "R", false, 0, "")
	doc.Ln(-1)
	doc.SetFont("Arial", "", 10)
	for _, e := range bill.Entries {
		doc.CellFormat(110, 6, e.Label, "1", 0, "L", false, 0, "")
		doc.CellFormat(40, 6, money(e.Amount), "1", 0, "R", false, 0, "")
		doc.Ln(-1)
	}
	doc.SetFont("Arial", "B", 10)
	doc.CellFormat(110, 6, "TOTAL DUE", "1", 0, "L", false, 0, "")
	doc.CellFormat(40, 6, money(bill.Total), "1", 0, "R", false, 0, "")
	doc.Ln(10)

	doc.SetFont("Arial", "", 10)
	doc.Cell(0, 6, fmt.Sprintf("Issued: %s", stmt.IssuedAt.Format(time.RFC3339)))
	doc.Ln(5)
	doc.Cell(0, 6, fmt.Sprintf("Due: %s", stmt.DueAt.Format(dateLayout)))
	doc.Ln(5)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders stmt as a workbook with a summary sheet and a charges sheet.
func BuildXLSX(stmt *Statement) ([]byte, error) {
	bill := stmt.Bill

	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	chargesSheet := "charges"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(chargesSheet); err != nil {
		return nil, err
	}

	rows := [][2]interface{}{
		{"Statement ID", stmt.ID},
		{"Customer", stmt.Customer.Name},
		{"Code", stmt.Customer.Code},
		{"Class", string(stmt.Customer.Class)},
		{"Address", stmt.Customer.Address},
		{"Reference month", stmt.Reading.Month},
		{"Previous reading (kWh)", stmt.Reading.Previous.InexactFloat64()},
		{"Current reading (kWh)", stmt.Reading.Current.InexactFloat64()},
		{"Consumption (kWh)", bill.ConsumptionKWh.InexactFloat64()},
		{"Total due", money(bill.Total)},
		{"Issued", stmt.IssuedAt.Format(time.RFC3339)},
		{"Due", stmt.DueAt.Format(dateLayout)},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Electricity Bill")
	for i, r := range rows {
		row := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), r[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), r[1])
	}

	_ = f.SetCellValue(chargesSheet, "A1", "Kind")
	_ = f.SetCellValue(chargesSheet, "B1", "Description")
	_ = f.SetCellValue(chargesSheet, "C1", "Amount")
	_ = f.SetCellValue(chargesSheet, "D1", "Subtotal")
	for i, e := range bill.Entries {
		row := i + 2
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("A%d", row), string(e.Kind))
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("B%d", row), e.Label)
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("C%d", row), money(e.Amount))
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("D%d", row), money(e.Subtotal))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Summary is what can be recovered from a rendered PDF statement.
type Summary struct {
	ID    string
	Total decimal.Decimal
}

var (
	pdfIDRe    = regexp.MustCompile(`Statement ID:\s*([0-9a-fA-F-]{36})`)
	pdfTotalRe = regexp.MustCompile(`TOTAL DUE\s*(-?[0-9]+\.[0-9]{2})`)
)

// ReadPDF extracts the statement ID and total from a PDF produced by BuildPDF.
func ReadPDF(data []byte) (Summary, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, fmt.Errorf("open pdf: %w", err)
	}
	rc, err := r.GetPlainText()
	if err != nil {
		return Summary{}, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return Summary{}, fmt.Errorf("read pdf text: %w", err)
	}
	text := buf.String()

	id := pdfIDRe.FindStringSubmatch(text)
	if len(id) < 2 {
		return Summary{}, fmt.Errorf("statement id not found in pdf")
	}
	total := pdfTotalRe.FindStringSubmatch(text)
	if len(total) < 2 {
		return Summary{}, fmt.Errorf("total not found in pdf")
	}
	v, err := decimal.NewFromString(total[1])
	if err != nil {
		return Summary{}, fmt.Errorf("parse total %q: %w", total[1], err)
	}
	return Summary{ID: id[1], Total: v}, nil
}
