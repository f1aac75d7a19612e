package tariff

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bher20/ebill/internal/errs"
)

const sampleYAML = `
reference_month: "04/2026"
classes:
  residential:
    tiers:
      - up_to: "100"
        rate: "0.50"
      - up_to: "300"
        rate: "0.70"
      - rate: "0.90"
  commercial:
    rate: "0.75"
    discounts:
      - from: "500"
        percent: "0.05"
      - from: "1000"
        percent: "0.10"
flags:
  red:
    label: Red flag
    rate: "0.10"
    mode: per_kwh
`

func TestParseDocument_YAML(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleYAML), FormatYAML)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	tbl, err := doc.Table()
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	res := tbl.Classes[Residential]
	if len(res.Tiers) != 3 || !res.Tiers[2].Unbounded() || !res.Tiers[1].Rate.Equal(d("0.70")) {
		t.Fatalf("unexpected residential tiers: %+v", res.Tiers)
	}
	com := tbl.Classes[Commercial]
	if len(com.Discounts) != 2 || !com.Discounts[1].From.Equal(d("1000")) || !com.Discounts[1].Percent.Equal(d("0.10")) {
		t.Fatalf("unexpected commercial discounts: %+v", com.Discounts)
	}
	if f := tbl.Flags["red"]; f.Mode != PerKWh || !f.Rate.Equal(d("0.10")) {
		t.Fatalf("unexpected red flag: %+v", f)
	}

	r := New()
	if err := r.Import(tbl); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := r.GetRate(Industrial); !errors.Is(err, errs.ErrUnknownClass) {
		t.Fatalf("expected industrial to be absent after import, got %v", err)
	}
	if r.ReferenceMonth() != "04/2026" {
		t.Fatalf("unexpected reference month %q", r.ReferenceMonth())
	}
}

func TestDocument_JSONRoundTripThroughRegistry(t *testing.T) {
	r := New()
	doc := DocumentFromTable(r.Snapshot())
	data, err := doc.Marshal(FormatJSON)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	parsed, err := ParseDocument(data, FormatJSON)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	tbl, err := parsed.Table()
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	other, err := NewFromTable(tbl)
	if err != nil {
		t.Fatalf("NewFromTable: %v", err)
	}
	for _, c := range AllClasses {
		want, _ := r.GetRate(c)
		got, err := other.GetRate(c)
		if err != nil {
			t.Fatalf("GetRate(%s): %v", c, err)
		}
		if !got.Equal(want) {
			t.Errorf("%s: got %+v, want %+v", c, got, want)
		}
	}
}

func TestDocument_InvalidNumber(t *testing.T) {
	doc := &Document{Classes: map[string]ClassDoc{"commercial": {Rate: "cheap"}}}
	if _, err := doc.Table(); err == nil {
		t.Fatalf("expected error for invalid number")
	}
}

func TestDocument_UnknownClass(t *testing.T) {
	doc := &Document{Classes: map[string]ClassDoc{"rural": {Rate: "0.1"}}}
	if _, err := doc.Table(); !errors.Is(err, errs.ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestDocument_DuplicateClassKey(t *testing.T) {
	doc, err := ParseDocument([]byte(`
classes:
  Residential:
    tiers:
      - rate: "0.50"
  residential:
    tiers:
      - rate: "0.90"
`), FormatYAML)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if _, err := doc.Table(); !errors.Is(err, errs.ErrUnknownClass) {
		t.Fatalf("expected duplicate class to be rejected, got %v", err)
	}
}

func TestLoadFile_ByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tariffs.yml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.ReferenceMonth != "04/2026" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if FormatForPath("x.JSON") != FormatJSON {
		t.Fatalf("expected json format for .JSON")
	}
}
