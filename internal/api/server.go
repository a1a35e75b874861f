// Package api is the read-only HTTP surface over the indexed data: lands,
// positions, historical tenures, wallet activity, prices and drop
// analytics.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/drops"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/prices"
)

// store is the repository surface the handlers read from.
type store interface {
	ListLands(ctx context.Context) ([]models.Land, error)
	GetLand(ctx context.Context, location models.Location) (*models.Land, error)
	GetLandStake(ctx context.Context, location models.Location) (*models.LandStake, error)
	ListPositions(ctx context.Context, owner string, limit int) ([]models.LandPosition, error)
	HistoricalByOwner(ctx context.Context, owner string) ([]models.LandHistorical, error)
	HistoricalWindow(ctx context.Context, owner string, since, until time.Time) ([]models.LandHistorical, error)
	HistoricalSnapshot(ctx context.Context, at time.Time) ([]models.LandHistorical, error)
	ActiveWallets(ctx context.Context, since time.Time) ([]models.WalletActivity, error)
	PriceFeedHistory(ctx context.Context, symbol string, since time.Time) ([]models.HistoricalPriceFeed, error)
}

type Server struct {
	repo        store
	oracle      *prices.Oracle
	drops       *drops.Engine
	corsOrigins []string
	httpServer  *http.Server
}

func NewServer(repo store, oracle *prices.Oracle, dropEngine *drops.Engine, corsOrigins []string) *Server {
	return &Server{repo: repo, oracle: oracle, drops: dropEngine, corsOrigins: corsOrigins}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.cors)

	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/price", s.handlePrice).Methods("GET", "OPTIONS")
	r.HandleFunc("/price/history/{symbol}", s.handlePriceHistory).Methods("GET", "OPTIONS")
	r.HandleFunc("/tokens", s.handleTokens).Methods("GET", "OPTIONS")
	r.HandleFunc("/lands", s.handleLands).Methods("GET", "OPTIONS")
	r.HandleFunc("/lands/{location}", s.handleLand).Methods("GET", "OPTIONS")
	r.HandleFunc("/positions/{owner}", s.handlePositions).Methods("GET", "OPTIONS")
	r.HandleFunc("/land-historical/leaderboard", s.handleLeaderboard).Methods("GET", "OPTIONS")
	r.HandleFunc("/land-historical/snapshot", s.handleSnapshot).Methods("GET", "OPTIONS")
	r.HandleFunc("/land-historical/{owner}", s.handleHistoricalByOwner).Methods("GET", "OPTIONS")
	r.HandleFunc("/wallets/active", s.handleActiveWallets).Methods("GET", "OPTIONS")
	r.HandleFunc("/drops/emitted", s.handleDropsEmitted).Methods("GET", "OPTIONS")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// Start runs the HTTP server until ListenAndServe returns.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Printf("[api] listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
