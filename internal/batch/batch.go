// Package batch implements the spreadsheet-driven bulk lookup path:
// detect the INN/FIO columns in an uploaded workbook, process every
// row through the same cache-or-enqueue path as interactive lookups,
// and assemble an output workbook plus, if a LIMIT is hit mid-run, a
// pending workbook of the rows left unprocessed.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"lookup-gateway/internal/classifier"
)

// Lookup resolves one (inn, fio) pair, either from cache or by
// driving a full upstream exchange. It mirrors the interactive path's
// cache-or-enqueue behavior so batch and single lookups share classify
// and cache semantics.
type Lookup func(ctx context.Context, inn, fio string) (phone, email string, status classifier.Status, err error)

// ProgressFunc receives a Progress update every progressEvery rows and
// once more at completion.
type ProgressFunc func(Progress)

const progressEvery = 10

// Run processes rows in order through lookup, stopping admission of
// new upstream work as soon as a LIMIT is observed; every row from
// that point on (inclusive) becomes pending. It returns the populated
// Assembler ready for BuildOutput/BuildPending.
func Run(ctx context.Context, rows []Row, lookup Lookup, onProgress ProgressFunc) (*Assembler, error) {
	a := NewAssembler()
	limited := false

	for i, row := range rows {
		if limited {
			a.AddPending(row)
			continue
		}

		phone, email, status, err := lookup(ctx, row.INN, row.FIO)
		if err != nil {
			return nil, fmt.Errorf("batch: row %d: %w", row.RowIndex, err)
		}

		if status == classifier.StatusLimit {
			limited = true
			a.AddPending(row)
		} else {
			a.AddProcessed(RowResult{Row: row, Phone: phone, Email: email, Status: status})
		}

		if onProgress != nil && (i+1)%progressEvery == 0 {
			onProgress(Progress{Processed: i + 1, Total: len(rows)})
		}
	}

	if onProgress != nil {
		onProgress(Progress{Processed: len(rows), Total: len(rows)})
	}

	return a, nil
}

var innHeaders = []string{"инн", "inn", "tax_id", "taxid"}
var fioHeaders = []string{"фио", "fio", "full_name", "fullname", "name"}

// Row is one extracted input row, 1-based to match the spreadsheet.
type Row struct {
	RowIndex int
	INN      string
	FIO      string
}

// RowResult is the outcome of processing one Row.
type RowResult struct {
	Row
	Phone  string
	Email  string
	Status classifier.Status
}

// Progress is emitted every few processed rows and at completion.
type Progress struct {
	Processed int
	Total     int
}

// ErrMissingColumn is returned when the header row lacks a resolvable
// INN or FIO column.
type ErrMissingColumn struct {
	Which string
}

func (e *ErrMissingColumn) Error() string {
	return fmt.Sprintf("batch: could not resolve %s column from header row", e.Which)
}

// ParseRows opens an xlsx byte stream, resolves the INN/FIO columns
// from the header row, and extracts every non-empty data row.
func ParseRows(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("batch: open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	allRows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("batch: read sheet: %w", err)
	}
	if len(allRows) == 0 {
		return nil, nil
	}

	innCol, fioCol, err := resolveColumns(allRows[0])
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i := 1; i < len(allRows); i++ {
		raw := allRows[i]
		inn := normalizeINN(cellAt(raw, innCol))
		fio := strings.TrimSpace(cellAt(raw, fioCol))
		if inn == "" && fio == "" {
			continue
		}
		rows = append(rows, Row{RowIndex: i + 1, INN: inn, FIO: fio})
	}

	return rows, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func resolveColumns(header []string) (innCol, fioCol int, err error) {
	innCol = findHeader(header, innHeaders)
	fioCol = findHeader(header, fioHeaders)
	if innCol < 0 {
		return 0, 0, &ErrMissingColumn{Which: "INN"}
	}
	if fioCol < 0 {
		return 0, 0, &ErrMissingColumn{Which: "FIO"}
	}
	return innCol, fioCol, nil
}

func findHeader(header []string, candidates []string) int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}
	for _, want := range candidates {
		for i, h := range normalized {
			if h == want {
				return i
			}
		}
	}
	return -1
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(s)), " "))
}

// normalizeINN applies the spreadsheet INN normalization rule: a
// trailing ".0" (from a numeric-typed cell excelize renders as a
// float string) is stripped by round-tripping through float64, any
// other value is trimmed as-is.
func normalizeINN(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, ".0") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return strconv.Itoa(int(f))
		}
	}
	return s
}

// Assembler builds the output and pending workbooks for a processed
// batch.
type Assembler struct {
	outputResults  []RowResult
	pendingResults []Row
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// AddProcessed records a row that completed processing (cache hit or
// upstream result).
func (a *Assembler) AddProcessed(r RowResult) {
	a.outputResults = append(a.outputResults, r)
}

// AddPending records a row left unprocessed after a mid-batch LIMIT.
func (a *Assembler) AddPending(r Row) {
	a.pendingResults = append(a.pendingResults, r)
}

// HasPending reports whether any rows were left pending.
func (a *Assembler) HasPending() bool {
	return len(a.pendingResults) > 0
}

// BuildOutput renders the processed rows as an xlsx byte stream with
// columns ИНН, ФИО, Телефон, Email, Статус.
func (a *Assembler) BuildOutput() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headers := []string{"ИНН", "ФИО", "Телефон", "Email", "Статус"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, r := range a.outputResults {
		row := i + 2
		values := []any{r.INN, r.FIO, r.Phone, r.Email, string(r.Status)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("batch: write output workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildPending renders the pending rows as an xlsx byte stream with
// columns ИНН, ФИО. Callers should only call this when HasPending
// reports true.
func (a *Assembler) BuildPending() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "ИНН")
	f.SetCellValue(sheet, "B1", "ФИО")

	for i, r := range a.pendingResults {
		row := i + 2
		aCell, _ := excelize.CoordinatesToCellName(1, row)
		bCell, _ := excelize.CoordinatesToCellName(2, row)
		f.SetCellValue(sheet, aCell, r.INN)
		f.SetCellValue(sheet, bCell, r.FIO)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("batch: write pending workbook: %w", err)
	}
	return buf.Bytes(), nil
}
