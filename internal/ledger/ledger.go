package ledger

import (
	"errors"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"example.com/salesync/internal/sale"
)

const (
	sheetName  = "Sales"
	dateLayout = "01/02/2006"
)

// defaultHeader is the column layout written for new ledgers. Older files may
// order columns differently; both reads and appends follow the header row by
// name, never by index.
var defaultHeader = []string{"Purchase ID", "Date", "Customer Name", "Email", "Product", "Amount", "Status"}

// ErrNoDedupColumn is returned for an existing ledger whose header row has no
// Purchase ID column: without it rows cannot be deduplicated safely.
var ErrNoDedupColumn = errors.New("ledger: existing file has no Purchase ID column")

// Report summarizes one ledger sync pass.
type Report struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Store maintains the append-only xlsx ledger of processed sales. Not safe
// for concurrent use against the same file; the scheduler serializes runs.
type Store struct {
	path string
}

// NewStore points a store at the ledger file path. The file is created on the
// first sync if absent.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the ledger file location.
func (s *Store) Path() string {
	return s.path
}

// Sync appends every sale not already recorded and skips the rest, saving the
// workbook once after the whole batch. Already-recorded is decided by the
// Purchase ID column of the existing sheet.
func (s *Store) Sync(sales []sale.Sale) (Report, error) {
	book, err := s.open()
	if err != nil {
		return Report{}, err
	}
	defer book.file.Close()

	var report Report
	for _, item := range sales {
		if _, ok := book.ids[item.ID]; ok {
			report.Skipped++
			continue
		}
		if err := book.appendRow(item); err != nil {
			return Report{}, err
		}
		report.Added++
	}

	if err := book.file.SaveAs(s.path); err != nil {
		return Report{}, fmt.Errorf("ledger: save %s: %w", s.path, err)
	}
	return report, nil
}

// workbook is one loaded ledger file plus the state needed to append to it.
type workbook struct {
	file    *excelize.File
	header  []string
	ids     map[string]struct{}
	nextRow int
}

// open loads the workbook, its header layout, and the set of purchase ids
// already present; a missing file becomes a fresh sheet with the default
// header row.
func (s *Store) open() (*workbook, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		file := excelize.NewFile()
		// A new workbook starts with "Sheet1"; rename it instead of leaving
		// an empty extra sheet behind.
		if err := file.SetSheetName(file.GetSheetName(0), sheetName); err != nil {
			file.Close()
			return nil, fmt.Errorf("ledger: init sheet: %w", err)
		}
		if err := writeHeader(file); err != nil {
			file.Close()
			return nil, fmt.Errorf("ledger: write header: %w", err)
		}
		return &workbook{file: file, header: defaultHeader, ids: map[string]struct{}{}, nextRow: 2}, nil
	}

	file, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", s.path, err)
	}

	rows, err := file.GetRows(sheetName)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("ledger: read sheet: %w", err)
	}
	if len(rows) == 0 {
		if err := writeHeader(file); err != nil {
			file.Close()
			return nil, fmt.Errorf("ledger: write header: %w", err)
		}
		return &workbook{file: file, header: defaultHeader, ids: map[string]struct{}{}, nextRow: 2}, nil
	}

	idCol := dedupColumn(rows[0])
	if idCol < 0 {
		file.Close()
		return nil, ErrNoDedupColumn
	}
	ids := make(map[string]struct{})
	for _, row := range rows[1:] {
		if idCol < len(row) && row[idCol] != "" {
			ids[row[idCol]] = struct{}{}
		}
	}
	return &workbook{file: file, header: rows[0], ids: ids, nextRow: len(rows) + 1}, nil
}

// appendRow writes one sale in this file's own column order.
func (b *workbook) appendRow(item sale.Sale) error {
	values := map[string]any{
		"Purchase ID":   item.ID,
		"Date":          item.CreatedAt.Format(dateLayout),
		"Customer Name": item.Customer.FullName(),
		"Email":         customerEmail(item),
		"Product":       item.OfferName,
		"Amount":        fmt.Sprintf("$%.2f", item.Amount),
		"Status":        string(item.Status),
	}
	cells := make([]any, len(b.header))
	for i, name := range b.header {
		cells[i] = values[name]
	}

	cell, err := excelize.CoordinatesToCellName(1, b.nextRow)
	if err != nil {
		return fmt.Errorf("ledger: row %d: %w", b.nextRow, err)
	}
	if err := b.file.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("ledger: append row: %w", err)
	}
	b.ids[item.ID] = struct{}{}
	b.nextRow++
	return nil
}

// dedupColumn locates the Purchase ID header cell. Depending on the layout
// vintage it sits in the first or second column.
func dedupColumn(headerRow []string) int {
	for i, name := range headerRow {
		if name == "Purchase ID" {
			return i
		}
	}
	return -1
}

func customerEmail(item sale.Sale) string {
	if item.Customer == nil {
		return ""
	}
	return item.Customer.Email
}

func writeHeader(file *excelize.File) error {
	cells := make([]any, len(defaultHeader))
	for i, name := range defaultHeader {
		cells[i] = name
	}
	return file.SetSheetRow(sheetName, "A1", &cells)
}
