package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

const avnuBatchSize = 10

var (
	ErrReferenceTokenNotFound = errors.New("reference token missing from avnu response")
	ErrDivisionByZero         = errors.New("reference token priceInETH is zero")
)

// TokenNotFoundError marks a configured token the provider did not
// return.
type TokenNotFoundError struct {
	Address string
}

func (e *TokenNotFoundError) Error() string {
	return fmt.Sprintf("token %s missing from avnu response", e.Address)
}

type avnuQuote struct {
	Address    string  `json:"address"`
	PriceInETH float64 `json:"priceInETH"`
	PriceInUSD float64 `json:"priceInUSD"`
	Decimals   int     `json:"decimals"`
}

// AvnuUpdater refreshes the snapshot from Avnu's token price API.
// Fail-closed: any error leaves the prior snapshot intact.
type AvnuUpdater struct {
	baseURL   string
	reference config.Token
	tokens    []config.Token
	store     *Store
	http      *http.Client
	limiter   *rate.Limiter
}

func NewAvnuUpdater(baseURL string, reference config.Token, tokens []config.Token, store *Store) *AvnuUpdater {
	return &AvnuUpdater{
		baseURL:   strings.TrimRight(baseURL, "/"),
		reference: reference,
		tokens:    tokens,
		store:     store,
		http:      &http.Client{Timeout: 20 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Refresh fetches every configured token (batched, max 10 per request),
// computes inverse ratios against the reference token and swaps the
// snapshot in one shot.
func (u *AvnuUpdater) Refresh(ctx context.Context) error {
	quotes := make(map[string]avnuQuote, len(u.tokens)+1)

	all := append([]config.Token{u.reference}, u.tokens...)
	seen := map[string]bool{}
	var addresses []string
	for _, t := range all {
		addr := models.NormalizeAddress(t.Address)
		if !seen[addr] {
			seen[addr] = true
			addresses = append(addresses, t.Address)
		}
	}

	for start := 0; start < len(addresses); start += avnuBatchSize {
		end := start + avnuBatchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		batch, err := u.fetchBatch(ctx, addresses[start:end])
		if err != nil {
			return err
		}
		for _, q := range batch {
			quotes[models.NormalizeAddress(q.Address)] = q
		}
	}

	refAddr := models.NormalizeAddress(u.reference.Address)
	ref, ok := quotes[refAddr]
	if !ok {
		return ErrReferenceTokenNotFound
	}
	if ref.PriceInETH == 0 {
		return ErrDivisionByZero
	}

	next := make(Snapshot, len(u.tokens))
	now := time.Now().UTC()
	for _, t := range u.tokens {
		addr := models.NormalizeAddress(t.Address)
		q, ok := quotes[addr]
		if !ok {
			return &TokenNotFoundError{Address: addr}
		}
		entry := TokenPrice{
			Address:   addr,
			Symbol:    t.Symbol,
			UpdatedAt: now,
		}
		if q.PriceInETH > 0 {
			// ratio(t) = priceInETH(t) / priceInETH(R); consumers read the
			// inverse so that ratio x reference_amount = token_amount.
			inverse := ref.PriceInETH / q.PriceInETH
			exact := strconv.FormatFloat(inverse, 'f', -1, 64)
			entry.Ratio = &inverse
			entry.RatioExact = &exact
		}
		if q.PriceInUSD > 0 {
			usd := q.PriceInUSD
			entry.PriceInUSD = &usd
		}
		next[addr] = entry
	}

	u.store.Swap(next)
	return nil
}

func (u *AvnuUpdater) fetchBatch(ctx context.Context, addresses []string) ([]avnuQuote, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	for _, addr := range addresses {
		params.Add("token", addr)
	}
	reqURL := fmt.Sprintf("%s/v1/tokens/prices?%s", u.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("avnu request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("avnu status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var quotes []avnuQuote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("avnu decode: %w", err)
	}
	return quotes, nil
}
