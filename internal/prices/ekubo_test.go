package prices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

func TestEkuboPairPricePicksDeepestPool(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(ekuboPairResponse{TopPools: []ekuboPool{
			{Liquidity: "100", Price: 3.0},
			{Liquidity: "0x5f5e100", Price: 4.0}, // deepest
			{Liquidity: "bogus", Price: 9.0},
		}})
	}))
	defer srv.Close()

	ref := config.Token{Address: "0x01", Symbol: "STRK"}
	tok := config.Token{Address: "0x02", Symbol: "LORDS"}
	u := NewEkuboUpdater(srv.URL, "starknet-mainnet", ref, []config.Token{tok}, NewStore())

	price, _, err := u.PairPrice(context.Background(), tok.Address)
	if err != nil {
		t.Fatalf("pair price: %v", err)
	}
	// Reference sorts first, so price is already token per reference.
	if price != 4.0 {
		t.Fatalf("price = %v, want 4.0 (deepest pool)", price)
	}
	if !strings.HasPrefix(gotPath, "/pair/starknet-mainnet/") {
		t.Fatalf("path = %s", gotPath)
	}
	// token0 < token1 in the path.
	parts := strings.Split(strings.TrimPrefix(gotPath, "/pair/starknet-mainnet/"), "/")
	if len(parts) != 3 || parts[0] >= parts[1] {
		t.Fatalf("pair not ordered in path: %v", parts)
	}
}

func TestEkuboPairPriceFlipsWhenReferenceIsToken1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ekuboPairResponse{TopPools: []ekuboPool{
			{Liquidity: "1000", Price: 0.25}, // token1 (= reference) per token0
		}})
	}))
	defer srv.Close()

	// "0x09" normalizes above "0x02", so the reference is token1.
	ref := config.Token{Address: "0x09", Symbol: "STRK"}
	tok := config.Token{Address: "0x02", Symbol: "LORDS"}
	u := NewEkuboUpdater(srv.URL, "starknet-mainnet", ref, []config.Token{tok}, NewStore())

	price, _, err := u.PairPrice(context.Background(), tok.Address)
	if err != nil {
		t.Fatalf("pair price: %v", err)
	}
	if price != 4.0 {
		t.Fatalf("price = %v, want 1/0.25 = 4.0", price)
	}
}

func TestEkuboRefreshKeepsPrevEntryOnFailure(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(ekuboPairResponse{TopPools: []ekuboPool{
			{Liquidity: "1000", Price: 2.0},
		}})
	}))
	defer srv.Close()

	ref := config.Token{Address: "0x01", Symbol: "STRK"}
	tok := config.Token{Address: "0x02", Symbol: "LORDS"}
	store := NewStore()
	u := NewEkuboUpdater(srv.URL, "starknet-mainnet", ref, []config.Token{tok}, store)

	if err := u.Refresh(context.Background()); err != nil {
		t.Fatalf("seed refresh: %v", err)
	}

	fail = true
	if err := u.Refresh(context.Background()); err == nil {
		t.Fatal("expected error from failing refresh")
	}
	p, ok := store.Get(models.NormalizeAddress(tok.Address))
	if !ok || p.Ratio == nil || *p.Ratio != 2.0 {
		t.Fatalf("previous entry not retained: %+v %v", p, ok)
	}
}
