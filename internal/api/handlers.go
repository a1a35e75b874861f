package api

import (
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oracle.List())
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	feed, err := s.repo.PriceFeedHistory(r.Context(), symbol, since)
	if err != nil {
		log.Printf("[api] price history %s: %v", symbol, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if feed == nil {
		feed = []models.HistoricalPriceFeed{}
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oracle.Tokens())
}

func (s *Server) handleLands(w http.ResponseWriter, r *http.Request) {
	lands, err := s.repo.ListLands(r.Context())
	if err != nil {
		log.Printf("[api] list lands: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if lands == nil {
		lands = []models.Land{}
	}
	writeJSON(w, http.StatusOK, lands)
}

func (s *Server) handleLand(w http.ResponseWriter, r *http.Request) {
	location, err := models.ParseLocation(mux.Vars(r)["location"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location")
		return
	}

	land, err := s.repo.GetLand(r.Context(), location)
	if err != nil {
		log.Printf("[api] get land %s: %v", location.Display(), err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if land == nil {
		writeError(w, http.StatusNotFound, "land not found")
		return
	}

	stake, err := s.repo.GetLandStake(r.Context(), location)
	if err != nil {
		log.Printf("[api] get stake %s: %v", location.Display(), err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"land":  land,
		"stake": stake,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	positions, err := s.repo.ListPositions(r.Context(), owner, limit)
	if err != nil {
		log.Printf("[api] list positions %s: %v", owner, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if positions == nil {
		positions = []models.LandPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleHistoricalByOwner(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	rows, err := s.repo.HistoricalByOwner(r.Context(), owner)
	if err != nil {
		log.Printf("[api] historical %s: %v", owner, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []models.LandHistorical{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// leaderboardEntry aggregates an owner's realized USD flows inside the
// requested window.
type leaderboardEntry struct {
	Owner        string  `json:"owner"`
	Lands        int     `json:"lands"`
	TotalBuyUSD  float64 `json:"total_buy_usd"`
	TotalSaleUSD float64 `json:"total_sale_usd"`
	NetUSD       float64 `json:"net_usd"`
	OpenLands    int     `json:"open_lands"`
	NukedLands   int     `json:"nuked_lands"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.repo.HistoricalWindow(r.Context(), "", since, until)
	if err != nil {
		log.Printf("[api] leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byOwner := map[string]*leaderboardEntry{}
	for _, row := range rows {
		entry, ok := byOwner[row.Owner]
		if !ok {
			entry = &leaderboardEntry{Owner: row.Owner}
			byOwner[row.Owner] = entry
		}
		entry.Lands++
		if row.BuyCostUSD != nil {
			entry.TotalBuyUSD += *row.BuyCostUSD
		}
		if row.SaleRevenueUSD != nil {
			entry.TotalSaleUSD += *row.SaleRevenueUSD
		}
		if row.CloseDate == nil {
			entry.OpenLands++
		} else if row.CloseReason != nil && *row.CloseReason == models.CloseReasonNuked {
			entry.NukedLands++
		}
	}

	board := make([]leaderboardEntry, 0, len(byOwner))
	for _, entry := range byOwner {
		entry.NetUSD = entry.TotalSaleUSD - entry.TotalBuyUSD
		board = append(board, *entry)
	}
	sort.Slice(board, func(i, j int) bool { return board[i].NetUSD > board[j].NetUSD })

	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	at := time.Now().UTC()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at, want RFC3339")
			return
		}
		at = parsed.UTC()
	}

	rows, err := s.repo.HistoricalSnapshot(r.Context(), at)
	if err != nil {
		log.Printf("[api] snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []models.LandHistorical{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"at": at, "lands": rows})
}

func (s *Server) handleActiveWallets(w http.ResponseWriter, r *http.Request) {
	weeks := 4
	if v := r.URL.Query().Get("weeks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid weeks")
			return
		}
		weeks = n
	}
	since := time.Now().UTC().Add(-time.Duration(weeks) * 7 * 24 * time.Hour)

	wallets, err := s.repo.ActiveWallets(r.Context(), since)
	if err != nil {
		log.Printf("[api] active wallets: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if wallets == nil {
		wallets = []models.WalletActivity{}
	}
	writeJSON(w, http.StatusOK, wallets)
}

func (s *Server) handleDropsEmitted(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports, err := s.drops.EmittedDrops(r.Context(), since, until)
	if err != nil {
		log.Printf("[api] drops emitted: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if reports == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// parseWindow reads days= or since=/until= query params. days wins when
// both are present.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var since, until time.Time
	q := r.URL.Query()

	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return since, until, errInvalidParam("days")
		}
		return time.Now().UTC().AddDate(0, 0, -n), until, nil
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return since, until, errInvalidParam("since")
		}
		since = t.UTC()
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return since, until, errInvalidParam("until")
		}
		until = t.UTC()
	}
	return since, until, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid " + string(e) + " parameter" }
