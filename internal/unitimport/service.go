package unitimport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// CacheInvalidator drops a unit's cached requirements after an import.
type CacheInvalidator interface {
	Invalidate(code string)
}

// Service imports unit requirements from CSV or XLSX spreadsheets.
type Service struct {
	units      repository.UnitRepository
	importLogs repository.ImportLogRepository
	cache      CacheInvalidator
	logger     *logrus.Logger
}

// NewService wires the import service.
func NewService(units repository.UnitRepository, importLogs repository.ImportLogRepository, cache CacheInvalidator, logger *logrus.Logger) *Service {
	return &Service{units: units, importLogs: importLogs, cache: cache, logger: logger}
}

// Request describes one requirements import.
type Request struct {
	RTOID     uuid.UUID
	UnitCode  string
	UnitTitle string
	Release   string
	FileName  string
	Data      io.Reader
}

// Summary reports the outcome of an import.
type Summary struct {
	TotalRows int `json:"total_rows"`
	Imported  int `json:"imported"`
	Failed    int `json:"failed"`
}

type table struct {
	headers []string
	rows    [][]string
}

// Import parses the spreadsheet, upserts the unit and its requirement rows,
// and records a log entry for every row that cannot be imported. Bad rows do
// not abort the rest of the file.
func (s *Service) Import(ctx context.Context, req Request) (Summary, error) {
	var summary Summary

	req.UnitCode = strings.ToUpper(strings.TrimSpace(req.UnitCode))
	if req.RTOID == uuid.Nil {
		return summary, errors.New("rto id is required")
	}
	if req.UnitCode == "" {
		return summary, errors.New("unit code is required")
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	parsed, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, err
	}

	cols, err := mapColumns(parsed.headers)
	if err != nil {
		return summary, err
	}

	unit, err := s.units.Create(ctx, domain.NewUnitOfCompetency(req.UnitCode, req.UnitTitle, req.Release))
	if err != nil {
		return summary, err
	}

	summary.TotalRows = len(parsed.rows)
	for idx, row := range parsed.rows {
		rowNumber := idx + 2 // 1-based, after the header row
		if err := s.importRow(ctx, unit.ID, cols, row); err != nil {
			summary.Failed++
			s.recordError(ctx, req, rowNumber, err)
			continue
		}
		summary.Imported++
	}

	if s.cache != nil {
		s.cache.Invalidate(req.UnitCode)
	}

	s.logger.WithFields(logrus.Fields{
		"unit_code": req.UnitCode,
		"total":     summary.TotalRows,
		"imported":  summary.Imported,
		"failed":    summary.Failed,
	}).Info("requirements import finished")
	return summary, nil
}

type columnMap struct {
	typeIdx   int
	numberIdx int
	textIdx   int
}

func mapColumns(headers []string) (columnMap, error) {
	cols := columnMap{typeIdx: -1, numberIdx: -1, textIdx: -1}
	for idx, header := range headers {
		switch header {
		case "requirement_type", "type", "category":
			cols.typeIdx = idx
		case "requirement_number", "number", "item":
			cols.numberIdx = idx
		case "requirement_text", "text", "requirement", "description":
			cols.textIdx = idx
		}
	}
	if cols.typeIdx == -1 || cols.numberIdx == -1 || cols.textIdx == -1 {
		return cols, fmt.Errorf("missing required columns; need requirement_type, requirement_number and requirement_text, got %s", strings.Join(headers, ", "))
	}
	return cols, nil
}

func (s *Service) importRow(ctx context.Context, unitID uuid.UUID, cols columnMap, row []string) error {
	reqType := strings.ToLower(strings.TrimSpace(cell(row, cols.typeIdx)))
	number := strings.TrimSpace(cell(row, cols.numberIdx))
	text := strings.TrimSpace(cell(row, cols.textIdx))

	if !domain.IsValidRequirementType(reqType) {
		return fmt.Errorf("unknown requirement type %q", reqType)
	}
	if number == "" {
		return errors.New("requirement number is empty")
	}
	if text == "" {
		return errors.New("requirement text is empty")
	}

	_, err := s.units.UpsertRequirement(ctx, domain.Requirement{
		UnitID: unitID,
		Type:   domain.RequirementType(reqType),
		Number: number,
		Text:   text,
	})
	return err
}

func (s *Service) recordError(ctx context.Context, req Request, rowNumber int, cause error) {
	entry := domain.ImportLogEntry{
		RTOID:        req.RTOID,
		UnitCode:     req.UnitCode,
		FileName:     req.FileName,
		RowNumber:    &rowNumber,
		ErrorMessage: cause.Error(),
	}
	if err := s.importLogs.Record(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"unit_code": req.UnitCode,
			"row":       rowNumber,
		}).Warn("failed to record import error")
	}
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseTable(fileName string, payload []byte) (table, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalize(records)
}

func parseExcel(payload []byte) (table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table{}, errors.New("excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalize(rows)
}

func normalize(records [][]string) (table, error) {
	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if rowEmpty(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return table{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}
	return table{headers: headers, rows: dataRows}, nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
