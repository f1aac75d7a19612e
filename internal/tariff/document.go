package tariff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/bher20/ebill/internal/errs"
)

// Document is the on-disk form of a tariff table. Figures are decimal strings
// so no precision is lost in either format.
type Document struct {
	ReferenceMonth string              `json:"reference_month,omitempty" yaml:"reference_month,omitempty"`
	Classes        map[string]ClassDoc `json:"classes" yaml:"classes"`
	Flags          map[string]FlagDoc  `json:"flags" yaml:"flags"`
}

type ClassDoc struct {
	Rate         string        `json:"rate,omitempty" yaml:"rate,omitempty"`
	Tiers        []TierDoc     `json:"tiers,omitempty" yaml:"tiers,omitempty"`
	Discounts    []DiscountDoc `json:"discounts,omitempty" yaml:"discounts,omitempty"`
	DemandCharge string        `json:"demand_charge,omitempty" yaml:"demand_charge,omitempty"`
}

// TierDoc is one band; an empty UpTo means unbounded.
type TierDoc struct {
	UpTo string `json:"up_to,omitempty" yaml:"up_to,omitempty"`
	Rate string `json:"rate" yaml:"rate"`
}

// DiscountDoc is one volume discount band.
type DiscountDoc struct {
	From    string `json:"from" yaml:"from"`
	Percent string `json:"percent" yaml:"percent"`
}

type FlagDoc struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Rate  string `json:"rate" yaml:"rate"`
	Mode  string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks a format from a file extension, defaulting to YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// ParseDocument decodes data in the given format.
func ParseDocument(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode tariff json: %w", err)
		}
	case FormatYAML, "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode tariff yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported tariff document format %q", format)
	}
	return &doc, nil
}

// LoadFile reads and decodes a tariff document, choosing the format by extension.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tariff file %s: %w", path, err)
	}
	return ParseDocument(data, FormatForPath(path))
}

// Marshal encodes the document.
func (doc *Document) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported tariff document format %q", format)
	}
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid number %q: %w", field, s, err)
	}
	return v, nil
}

// Table converts the document into a Table. Figures are parsed but rate
// validation is left to Registry.Import.
func (doc *Document) Table() (Table, error) {
	t := Table{
		ReferenceMonth: doc.ReferenceMonth,
		Classes:        make(map[Class]ClassRate, len(doc.Classes)),
		Flags:          make(map[string]Flag, len(doc.Flags)),
	}
	for name, cd := range doc.Classes {
		class, err := ParseClass(name)
		if err != nil {
			return Table{}, err
		}
		if _, dup := t.Classes[class]; dup {
			return Table{}, errs.Newf(errs.KindUnknownClass, "class %q is defined more than once", class)
		}
		var cr ClassRate
		if cr.Rate, err = parseDecimal(name+".rate", cd.Rate); err != nil {
			return Table{}, err
		}
		if cr.DemandCharge, err = parseDecimal(name+".demand_charge", cd.DemandCharge); err != nil {
			return Table{}, err
		}
		for i, td := range cd.Tiers {
			var tier Tier
			field := fmt.Sprintf("%s.tiers[%d]", name, i)
			if tier.UpTo, err = parseDecimal(field+".up_to", td.UpTo); err != nil {
				return Table{}, err
			}
			if tier.Rate, err = parseDecimal(field+".rate", td.Rate); err != nil {
				return Table{}, err
			}
			cr.Tiers = append(cr.Tiers, tier)
		}
		for i, dd := range cd.Discounts {
			var band Discount
			field := fmt.Sprintf("%s.discounts[%d]", name, i)
			if band.From, err = parseDecimal(field+".from", dd.From); err != nil {
				return Table{}, err
			}
			if band.Percent, err = parseDecimal(field+".percent", dd.Percent); err != nil {
				return Table{}, err
			}
			cr.Discounts = append(cr.Discounts, band)
		}
		t.Classes[class] = cr
	}
	for id, fd := range doc.Flags {
		rate, err := parseDecimal("flags."+id+".rate", fd.Rate)
		if err != nil {
			return Table{}, err
		}
		t.Flags[id] = Flag{Label: fd.Label, Rate: rate, Mode: FlagMode(fd.Mode)}
	}
	return t, nil
}

func formatDecimal(v decimal.Decimal) string {
	if v.IsZero() {
		return ""
	}
	return v.String()
}

// DocumentFromTable converts a Table into its document form.
func DocumentFromTable(t Table) *Document {
	doc := &Document{
		ReferenceMonth: t.ReferenceMonth,
		Classes:        make(map[string]ClassDoc, len(t.Classes)),
		Flags:          make(map[string]FlagDoc, len(t.Flags)),
	}
	for class, cr := range t.Classes {
		cd := ClassDoc{
			Rate:         formatDecimal(cr.Rate),
			DemandCharge: formatDecimal(cr.DemandCharge),
		}
		for _, tier := range cr.Tiers {
			cd.Tiers = append(cd.Tiers, TierDoc{UpTo: formatDecimal(tier.UpTo), Rate: tier.Rate.String()})
		}
		for _, band := range cr.Discounts {
			cd.Discounts = append(cd.Discounts, DiscountDoc{From: band.From.String(), Percent: band.Percent.String()})
		}
		doc.Classes[string(class)] = cd
	}
	for id, f := range t.Flags {
		doc.Flags[id] = FlagDoc{Label: f.Label, Rate: f.Rate.String(), Mode: string(f.Mode)}
	}
	return doc
}
