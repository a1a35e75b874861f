package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// EkuboUpdater derives token ratios from Ekubo AMM pool prices. It is
// the fallback source: the oracle only consults its snapshot when Avnu
// has no entry for a token.
type EkuboUpdater struct {
	baseURL   string
	chainID   string
	reference config.Token
	tokens    []config.Token
	store     *Store
	http      *http.Client
}

func NewEkuboUpdater(baseURL, chainID string, reference config.Token, tokens []config.Token, store *Store) *EkuboUpdater {
	return &EkuboUpdater{
		baseURL:   strings.TrimRight(baseURL, "/"),
		chainID:   chainID,
		reference: reference,
		tokens:    tokens,
		store:     store,
		http:      &http.Client{Timeout: 20 * time.Second},
	}
}

type ekuboPool struct {
	PoolKey struct {
		Fee string `json:"fee"`
	} `json:"pool_key"`
	Liquidity string  `json:"liquidity"`
	Price     float64 `json:"price"` // token1 per 1 token0
}

type ekuboPairResponse struct {
	TopPools []ekuboPool `json:"topPools"`
}

// PairPrice returns "1 reference = X token" from the deepest pool of the
// pair, plus the chosen pool's fee tag.
func (u *EkuboUpdater) PairPrice(ctx context.Context, token string) (float64, string, error) {
	ref := models.NormalizeAddress(u.reference.Address)
	tok := models.NormalizeAddress(token)
	if ref == tok {
		return 1, "", nil
	}

	// The pair endpoint wants token0 < token1 lexicographically.
	token0, token1 := ref, tok
	if token0 > token1 {
		token0, token1 = token1, token0
	}

	reqURL := fmt.Sprintf("%s/pair/%s/%s/%s/pools", u.baseURL, u.chainID, token0, token1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("ekubo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, "", fmt.Errorf("ekubo status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var pair ekuboPairResponse
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return 0, "", fmt.Errorf("ekubo decode: %w", err)
	}

	best, ok := deepestPool(pair.TopPools)
	if !ok {
		return 0, "", fmt.Errorf("no ekubo pool for %s/%s", token0, token1)
	}
	if best.Price <= 0 {
		return 0, "", fmt.Errorf("ekubo pool for %s/%s has no price", token0, token1)
	}

	// Price is token1 per token0; flip when the reference sorted second.
	price := best.Price
	if ref == token1 {
		price = 1 / price
	}
	return price, best.PoolKey.Fee, nil
}

func deepestPool(pools []ekuboPool) (ekuboPool, bool) {
	var best ekuboPool
	var bestLiquidity models.U256
	found := false
	for _, p := range pools {
		liq, err := models.ParseU256(p.Liquidity)
		if err != nil {
			continue
		}
		if !found || liq.Cmp(bestLiquidity) > 0 {
			best, bestLiquidity, found = p, liq, true
		}
	}
	return best, found
}

// Refresh rebuilds the Ekubo snapshot pool by pool. A failing pair is
// skipped (its previous entry carries over) so one broken pool does not
// blank the whole fallback.
func (u *EkuboUpdater) Refresh(ctx context.Context) error {
	prev := u.store.Load()
	next := make(Snapshot, len(u.tokens))
	now := time.Now().UTC()
	var firstErr error

	for _, t := range u.tokens {
		addr := models.NormalizeAddress(t.Address)
		price, pool, err := u.PairPrice(ctx, t.Address)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if old, ok := prev[addr]; ok {
				next[addr] = old
			}
			continue
		}
		exact := strconv.FormatFloat(price, 'f', -1, 64)
		next[addr] = TokenPrice{
			Address:    addr,
			Symbol:     t.Symbol,
			Ratio:      &price,
			RatioExact: &exact,
			BestPool:   pool,
			UpdatedAt:  now,
		}
	}

	u.store.Swap(next)
	return firstErr
}
