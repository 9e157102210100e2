package faq

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

var errUnsupportedFormat = errors.New("unsupported faq file format")

// Load reads FAQ entries from path. The format follows the extension:
// .json (array of objects), .yaml/.yml (sequence of mappings) or .xlsx
// (first sheet, header row naming id, question, answer, category).
// Entries without an id are numbered by position starting at 1.
func Load(path string) ([]Entry, error) {
	var (
		entries []Entry
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		entries, err = loadJSON(path)
	case ".yaml", ".yml":
		entries, err = loadYAML(path)
	case ".xlsx":
		entries, err = loadXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].ID == 0 {
			entries[i].ID = i + 1
		}
	}
	return entries, nil
}

func loadJSON(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading faq file: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing faq json: %w", err)
	}
	return entries, nil
}

func loadYAML(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading faq file: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing faq yaml: %w", err)
	}
	return entries, nil
}

func loadXLSX(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening faq workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("faq workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading faq rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := mapColumns(rows[0])
	qCol, okQ := cols["question"]
	aCol, okA := cols["answer"]
	if !okQ || !okA {
		return nil, fmt.Errorf("faq workbook header must name question and answer columns, got %v", rows[0])
	}

	var entries []Entry
	for i, row := range rows[1:] {
		q := cell(row, qCol)
		a := cell(row, aCol)
		if q == "" && a == "" {
			continue
		}
		e := Entry{Question: q, Answer: a}
		if c, ok := cols["category"]; ok {
			e.Category = cell(row, c)
		}
		if c, ok := cols["id"]; ok {
			if raw := cell(row, c); raw != "" {
				id, err := strconv.Atoi(raw)
				if err != nil {
					return nil, fmt.Errorf("faq workbook row %d: invalid id %q", i+2, raw)
				}
				e.ID = id
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		m[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return m
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
