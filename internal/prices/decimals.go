package prices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

// sn_keccak("decimals")
const decimalsSelector = "0x4c4fb1ab068f6039d5780c68dd0fa2f8742cceb3426d19667778ca7f3518a9"

// DecimalsCache maps token addresses to ERC20 decimals. Config values are
// the fallback; a refresher overwrites them with on-chain reads.
type DecimalsCache struct {
	mu     sync.RWMutex
	byAddr map[string]int
}

func NewDecimalsCache(tokens []config.Token) *DecimalsCache {
	c := &DecimalsCache{byAddr: make(map[string]int, len(tokens))}
	for _, t := range tokens {
		if t.Decimals > 0 {
			c.byAddr[models.NormalizeAddress(t.Address)] = t.Decimals
		}
	}
	return c
}

// Decimals returns the cached decimals for a token, defaulting to 18.
func (c *DecimalsCache) Decimals(address string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.byAddr[models.NormalizeAddress(address)]; ok {
		return d
	}
	return 18
}

func (c *DecimalsCache) set(address string, decimals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAddr[models.NormalizeAddress(address)] = decimals
}

// DecimalsRefresher polls decimals() on every configured token contract
// over Starknet JSON-RPC and updates the cache. Errors leave the cached
// (or config) value in place.
type DecimalsRefresher struct {
	rpcURL string
	tokens []config.Token
	cache  *DecimalsCache
	http   *http.Client
}

func NewDecimalsRefresher(rpcURL string, tokens []config.Token, cache *DecimalsCache) *DecimalsRefresher {
	return &DecimalsRefresher{
		rpcURL: rpcURL,
		tokens: tokens,
		cache:  cache,
		http:   &http.Client{Timeout: 20 * time.Second},
	}
}

func (r *DecimalsRefresher) Refresh(ctx context.Context) error {
	var firstErr error
	for _, t := range r.tokens {
		d, err := r.fetchDecimals(ctx, t.Address)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("decimals %s: %w", t.Symbol, err)
			}
			continue
		}
		r.cache.set(t.Address, d)
	}
	return firstErr
}

func (r *DecimalsRefresher) fetchDecimals(ctx context.Context, address string) (int, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "starknet_call",
		"params": map[string]any{
			"request": map[string]any{
				"contract_address":     models.NormalizeAddress(address),
				"entry_point_selector": decimalsSelector,
				"calldata":             []string{},
			},
			"block_id": "latest",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.rpcURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("starknet_call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("starknet_call status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var rpcResp struct {
		Result []string `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return 0, fmt.Errorf("starknet_call decode: %w", err)
	}
	if rpcResp.Error != nil {
		return 0, fmt.Errorf("starknet_call error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 {
		return 0, fmt.Errorf("starknet_call returned no felts")
	}

	d, err := strconv.ParseInt(strings.TrimPrefix(rpcResp.Result[0], "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse decimals felt %q: %w", rpcResp.Result[0], err)
	}
	if d <= 0 || d > 77 {
		return 0, fmt.Errorf("implausible decimals %d", d)
	}
	return int(d), nil
}
