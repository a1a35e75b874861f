package prices

import (
	"math"
	"testing"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

func pricedSnapshot(entries map[string]float64) Snapshot {
	s := make(Snapshot, len(entries))
	for addr, ratio := range entries {
		r := ratio
		norm := models.NormalizeAddress(addr)
		s[norm] = TokenPrice{Address: norm, Ratio: &r}
	}
	return s
}

func TestOracleFallsBackToEkubo(t *testing.T) {
	tokens := []config.Token{
		{Address: "0x01", Symbol: "USDC"},
		{Address: "0x02", Symbol: "LORDS"},
	}
	avnu, ekubo := NewStore(), NewStore()
	avnu.Swap(pricedSnapshot(map[string]float64{"0x01": 0.5}))
	ekubo.Swap(pricedSnapshot(map[string]float64{"0x01": 99, "0x02": 4}))

	o := NewOracle(avnu, ekubo, NewDecimalsCache(tokens), tokens)

	// Avnu wins when it has an entry.
	p, ok := o.Ratio("0x01")
	if !ok || *p.Ratio != 0.5 {
		t.Fatalf("ratio(0x01) = %v %v, want 0.5 from avnu", p.Ratio, ok)
	}
	// Ekubo fills the gap.
	p, ok = o.Ratio("0x02")
	if !ok || *p.Ratio != 4 {
		t.Fatalf("ratio(0x02) = %v %v, want 4 from ekubo", p.Ratio, ok)
	}
	if _, ok := o.Ratio("0x03"); ok {
		t.Fatal("unknown token returned a ratio")
	}
}

func TestOracleUSDRatio(t *testing.T) {
	tokens := []config.Token{
		{Address: "0x01", Symbol: "USDC", Decimals: 6},
		{Address: "0x02", Symbol: "LORDS", Decimals: 18},
	}
	avnu := NewStore()
	// 1 STRK = 0.5 USDC and 1 STRK = 4 LORDS, so 1 LORDS = 0.125 USD.
	avnu.Swap(pricedSnapshot(map[string]float64{"0x01": 0.5, "0x02": 4}))

	o := NewOracle(avnu, NewStore(), NewDecimalsCache(tokens), tokens)

	usd := o.USDRatio("0x02")
	if usd == nil || math.Abs(*usd-0.125) > 1e-12 {
		t.Fatalf("usd ratio = %v, want 0.125", usd)
	}

	// 8 whole LORDS -> 1 USD.
	amount := models.MustU256("8000000000000000000")
	v := o.USDValue("0x02", amount)
	if v == nil || math.Abs(*v-1) > 1e-9 {
		t.Fatalf("usd value = %v, want 1", v)
	}

	if got := o.USDRatio("0x03"); got != nil {
		t.Fatalf("usd ratio for unknown token = %v, want nil", *got)
	}
}

func TestOracleUSDRatioWithoutUSDC(t *testing.T) {
	tokens := []config.Token{{Address: "0x02", Symbol: "LORDS"}}
	avnu := NewStore()
	avnu.Swap(pricedSnapshot(map[string]float64{"0x02": 4}))

	o := NewOracle(avnu, NewStore(), NewDecimalsCache(tokens), tokens)
	if got := o.USDRatio("0x02"); got != nil {
		t.Fatalf("usd ratio without USDC = %v, want nil", *got)
	}
}

func TestOracleListIncludesUnpriced(t *testing.T) {
	tokens := []config.Token{
		{Address: "0x02", Symbol: "LORDS"},
		{Address: "0x03", Symbol: "PAPER"},
	}
	avnu := NewStore()
	avnu.Swap(pricedSnapshot(map[string]float64{"0x02": 4}))

	o := NewOracle(avnu, NewStore(), NewDecimalsCache(tokens), tokens)
	list := o.List()
	if len(list) != 2 {
		t.Fatalf("list has %d entries, want 2", len(list))
	}
	if list[0].Symbol != "LORDS" || list[0].Ratio == nil {
		t.Fatalf("list[0] = %+v, want priced LORDS", list[0])
	}
	if list[1].Symbol != "PAPER" || list[1].Ratio != nil {
		t.Fatalf("list[1] = %+v, want unpriced PAPER", list[1])
	}
}
