package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hypocycle/domain/core"
	"hypocycle/domain/verdict"

	"github.com/xuri/excelize/v2"
)

// Column headers of a results table
const (
	ColumnSampleID = "sample_id"
	ColumnOrdinal  = "ordinal"
	ColumnValue    = "value"
)

// ResultData is a measurement table read from disk
type ResultData struct {
	Results  verdict.ResultSet
	Ordinals map[core.SampleID]int // only samples with an ordinal column value
}

// DataReader reads measurement tables from Excel or CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a reader; the file type follows the extension
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadResults reads a results table. XLSX files are read from the Results
// sheet, falling back to the first sheet.
func (r *DataReader) ReadResults() (*ResultData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}
	defer file.Close()

	var rows [][]string
	switch r.fileType {
	case "csv":
		rows, err = readCSVRows(file)
	default:
		rows, err = readExcelRows(file)
	}
	if err != nil {
		return nil, err
	}
	return processRows(rows)
}

func readExcelRows(in io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := SheetResults
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func readCSVRows(in io.Reader) ([][]string, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows maps the header row to columns and parses each data row
func processRows(rows [][]string) (*ResultData, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("results table must have a header row and at least one data row")
	}

	columns := map[string]int{}
	for i, header := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(header))] = i
	}
	idCol, ok := columns[ColumnSampleID]
	if !ok {
		return nil, fmt.Errorf("results table has no %q column", ColumnSampleID)
	}
	valueCol, ok := columns[ColumnValue]
	if !ok {
		return nil, fmt.Errorf("results table has no %q column", ColumnValue)
	}
	ordinalCol, hasOrdinal := columns[ColumnOrdinal]

	data := &ResultData{Results: verdict.ResultSet{}, Ordinals: map[core.SampleID]int{}}
	for n, row := range rows[1:] {
		line := n + 2
		raw := cell(row, idCol)
		if raw == "" {
			continue
		}
		id, err := core.ParseSampleID(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if _, dup := data.Results[id]; dup {
			return nil, fmt.Errorf("row %d: duplicate sample_id %s", line, id)
		}

		value, err := strconv.ParseFloat(cell(row, valueCol), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid value for %s: %w", line, id, err)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("row %d: value for %s must be finite, got %v", line, id, value)
		}
		data.Results[id] = value

		if hasOrdinal {
			if s := cell(row, ordinalCol); s != "" {
				ordinal, err := strconv.Atoi(s)
				if err != nil {
					return nil, fmt.Errorf("row %d: invalid ordinal for %s: %w", line, id, err)
				}
				data.Ordinals[id] = ordinal
			}
		}
	}
	return data, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
