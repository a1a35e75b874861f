package prices

import (
	"math"
	"sort"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// Oracle is the read side of the price subsystem: Avnu first, Ekubo as
// fallback, with USD conversion through the USDC ratio and the decimals
// cache.
type Oracle struct {
	avnu     *Store
	ekubo    *Store
	decimals *DecimalsCache
	tokens   []config.Token
	usdcAddr string
}

func NewOracle(avnu, ekubo *Store, decimals *DecimalsCache, tokens []config.Token) *Oracle {
	o := &Oracle{avnu: avnu, ekubo: ekubo, decimals: decimals, tokens: tokens}
	for _, t := range tokens {
		if t.Symbol == "USDC" {
			o.usdcAddr = models.NormalizeAddress(t.Address)
		}
	}
	return o
}

// Ratio returns the current price entry for a token address.
func (o *Oracle) Ratio(address string) (TokenPrice, bool) {
	addr := models.NormalizeAddress(address)
	if p, ok := o.avnu.Get(addr); ok && p.Ratio != nil {
		return p, true
	}
	if p, ok := o.ekubo.Get(addr); ok && p.Ratio != nil {
		return p, true
	}
	return TokenPrice{}, false
}

// USDRatio is the USD value of one whole unit of the token:
// usdc_ratio / token_ratio. Nil when either price is missing.
func (o *Oracle) USDRatio(address string) *float64 {
	if o.usdcAddr == "" {
		return nil
	}
	usdc, ok := o.Ratio(o.usdcAddr)
	if !ok || usdc.Ratio == nil || *usdc.Ratio == 0 {
		return nil
	}
	tok, ok := o.Ratio(address)
	if !ok || tok.Ratio == nil || *tok.Ratio == 0 {
		return nil
	}
	v := *usdc.Ratio / *tok.Ratio
	return &v
}

// USDValue converts a raw on-chain amount of a token to USD, using the
// token's decimals. Nil when no price is known.
func (o *Oracle) USDValue(address string, amount models.U256) *float64 {
	ratio := o.USDRatio(address)
	if ratio == nil {
		return nil
	}
	decimals := o.decimals.Decimals(address)
	v := amount.Float64() / math.Pow10(decimals) * *ratio
	return &v
}

// List returns the merged snapshot for every configured token, sorted by
// symbol. Tokens with no price from either source appear with nil ratio.
func (o *Oracle) List() []TokenPrice {
	out := make([]TokenPrice, 0, len(o.tokens))
	for _, t := range o.tokens {
		addr := models.NormalizeAddress(t.Address)
		if p, ok := o.Ratio(addr); ok {
			out = append(out, p)
			continue
		}
		out = append(out, TokenPrice{Address: addr, Symbol: t.Symbol})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Tokens exposes the registry with effective decimals.
func (o *Oracle) Tokens() []models.Token {
	out := make([]models.Token, 0, len(o.tokens))
	for _, t := range o.tokens {
		out = append(out, models.Token{
			Address:  models.NormalizeAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: o.decimals.Decimals(t.Address),
		})
	}
	return out
}
