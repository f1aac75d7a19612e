package charges

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/errs"
	"github.com/bher20/ebill/internal/tariff"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func state(base string) State {
	return State{ConsumptionKWh: d("250"), Base: d(base), Current: d(base)}
}

func TestApply_FlagPerKWh(t *testing.T) {
	reg := tariff.New()
	if err := reg.UpdateSurcharge("red", tariff.Flag{Label: "Red flag", Rate: d("0.10"), Mode: tariff.PerKWh}); err != nil {
		t.Fatalf("UpdateSurcharge: %v", err)
	}
	got, err := Flag("red").Apply(reg, state("155"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !got.Amount.Equal(d("25")) || got.Label != "Red flag" || got.Kind != KindFlag {
		t.Fatalf("unexpected flag contribution: %+v", got)
	}
}

func TestApply_FlagModesComeFromRegistry(t *testing.T) {
	reg := tariff.New()
	if err := reg.UpdateSurcharge("scarcity", tariff.Flag{Rate: d("8"), Mode: tariff.Fixed}); err != nil {
		t.Fatalf("UpdateSurcharge: %v", err)
	}
	got, err := Flag("scarcity").Apply(reg, state("100"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !got.Amount.Equal(d("8")) {
		t.Fatalf("fixed flag = %s, want 8", got.Amount)
	}

	// Default yellow flag: 1.50 per 100 kWh.
	got, err = Flag("yellow").Apply(reg, state("100"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !got.Amount.Equal(d("3.75")) {
		t.Fatalf("yellow flag = %s, want 3.75", got.Amount)
	}
}

func TestApply_UnknownFlag(t *testing.T) {
	if _, err := Flag("blue").Apply(tariff.New(), state("100")); !errors.Is(err, errs.ErrUnknownFlag) {
		t.Fatalf("expected ErrUnknownFlag, got %v", err)
	}
}

func TestApply_TaxOnRunningValue(t *testing.T) {
	st := State{ConsumptionKWh: d("250"), Base: d("155"), Current: d("180")}
	got, err := Tax("ICMS", d("0.18")).Apply(nil, st)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !got.Amount.Equal(d("32.4")) {
		t.Fatalf("tax = %s, want 32.40", got.Amount)
	}
	if got.Label != "ICMS (18%)" {
		t.Fatalf("unexpected label %q", got.Label)
	}
}

func TestApply_MunicipalOnBaseOnly(t *testing.T) {
	st := State{ConsumptionKWh: d("250"), Base: d("100"), Current: d("150")}
	got, err := Municipal(d("0.03")).Apply(nil, st)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !got.Amount.Equal(d("3")) {
		t.Fatalf("municipal = %s, want 3", got.Amount)
	}
}

func TestApply_FeeIgnoresValue(t *testing.T) {
	for _, base := range []string{"0", "10", "9999"} {
		got, err := Fee("lighting", d("12")).Apply(nil, state(base))
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !got.Amount.Equal(d("12")) {
			t.Fatalf("fee on base %s = %s, want 12", base, got.Amount)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		want error
	}{
		{"tax above one", Tax("ICMS", d("1.01")), errs.ErrInvalidPercentage},
		{"tax negative", Tax("ICMS", d("-0.01")), errs.ErrInvalidPercentage},
		{"municipal above one", Municipal(d("3")), errs.ErrInvalidPercentage},
		{"negative fee", Fee("lighting", d("-1")), errs.ErrInvalidAmount},
		{"empty flag", Flag(""), errs.ErrUnknownFlag},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.spec.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate = %v, want %v", err, tc.want)
			}
		})
	}
	for _, ok := range []Spec{Tax("zero", decimal.Zero), Tax("all", d("1")), Fee("free", decimal.Zero)} {
		if err := ok.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", ok, err)
		}
	}
	if err := (Spec{Kind: "discount"}).Validate(); err == nil {
		t.Errorf("expected error for unknown kind")
	}
}

func TestParseSpec(t *testing.T) {
	cases := []struct {
		in   string
		want Spec
	}{
		{"flag:red1", Flag("red1")},
		{"tax:ICMS=0.18", Tax("ICMS", d("0.18"))},
		{"tax:icms", Tax("ICMS", d("0.18"))},
		{"fee:lighting=12", Fee("lighting", d("12"))},
		{"fee:lighting", LightingFee()},
		{"municipal:0.03", Municipal(d("0.03"))},
	}
	for _, tc := range cases {
		got, err := ParseSpec(tc.in)
		if err != nil {
			t.Fatalf("ParseSpec(%q): %v", tc.in, err)
		}
		if got.Kind != tc.want.Kind || got.Name != tc.want.Name || got.FlagID != tc.want.FlagID ||
			!got.Percentage.Equal(tc.want.Percentage) || !got.Amount.Equal(tc.want.Amount) {
			t.Errorf("ParseSpec(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "flag", "tax:vat", "tax:ICMS=abc", "fee:water", "municipal:x", "rebate:5"} {
		if _, err := ParseSpec(bad); err == nil {
			t.Errorf("ParseSpec(%q): expected error", bad)
		}
	}
	if _, err := ParseSpec("tax:ICMS=1.5"); !errors.Is(err, errs.ErrInvalidPercentage) {
		t.Errorf("expected ErrInvalidPercentage for out-of-range tax, got %v", err)
	}
}

func TestStandardLayers(t *testing.T) {
	layers := StandardLayers("yellow")
	if len(layers) != 4 {
		t.Fatalf("expected 4 layers, got %d", len(layers))
	}
	if layers[0].Kind != KindFlag || layers[1].Name != "PIS/COFINS" || layers[2].Name != "ICMS" || layers[3].Kind != KindFee {
		t.Fatalf("unexpected standard chain: %+v", layers)
	}
}
