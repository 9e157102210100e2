package faq

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "faqs.json", `[
  {"id": 7, "question": "What are your business hours?", "answer": "9 to 5.", "category": "General"},
  {"question": "How do I reset my password?", "answer": "Use the reset link.", "category": "Account"}
]`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []Entry{
		{ID: 7, Question: "What are your business hours?", Answer: "9 to 5.", Category: "General"},
		{ID: 2, Question: "How do I reset my password?", Answer: "Use the reset link.", Category: "Account"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "faqs.yaml", `
- question: Do you ship internationally?
  answer: Yes, to 40 countries.
  category: Shipping
- id: 10
  question: Which payment methods do you accept?
  answer: Cards and PayPal.
  category: Billing
`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != 1 || got[0].Category != "Shipping" {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].ID != 10 || got[1].Answer != "Cards and PayPal." {
		t.Errorf("second entry = %+v", got[1])
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faqs.xlsx")
	f := excelize.NewFile()
	rows := [][]any{
		{"ID", "Question", "Answer", "Category"},
		{1, "How can I track my order?", "Use the tracking link in your email.", "Orders"},
		{"", "", "", ""},
		{3, "What is your return policy?", "30 days, unused items.", "Returns"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := r
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []Entry{
		{ID: 1, Question: "How can I track my order?", Answer: "Use the tracking link in your email.", Category: "Orders"},
		{ID: 3, Question: "What is your return policy?", Answer: "30 days, unused items.", Category: "Returns"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "bad.json", "{not json")); err == nil {
		t.Error("expected error for malformed json")
	}
	_, err := Load(writeFile(t, "faqs.csv", "q,a"))
	if !errors.Is(err, errUnsupportedFormat) {
		t.Errorf("err = %v, want errUnsupportedFormat", err)
	}
}

func TestOpenDegradesToEmpty(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop())
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
	if got := s.List(); len(got) != 0 {
		t.Errorf("List = %v, want empty", got)
	}
}

func TestListIsStable(t *testing.T) {
	s := NewStore([]Entry{
		{ID: 1, Question: "a", Answer: "b"},
		{ID: 2, Question: "c", Answer: "d"},
	})

	first := s.List()
	first[0].Answer = "mutated"
	second := s.List()

	if second[0].Answer != "b" {
		t.Error("List exposed internal storage to mutation")
	}
	if !reflect.DeepEqual(second, s.List()) {
		t.Error("consecutive List calls differ")
	}
}

func TestBundledKnowledgeBase(t *testing.T) {
	entries, err := Load(filepath.Join("..", "..", "faqs.json"))
	if err != nil {
		t.Fatalf("bundled faqs.json: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("bundled faqs.json is empty")
	}
	seen := make(map[int]bool)
	for _, e := range entries {
		if e.Question == "" || e.Answer == "" {
			t.Errorf("entry %d is incomplete: %+v", e.ID, e)
		}
		if seen[e.ID] {
			t.Errorf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
	}
}
