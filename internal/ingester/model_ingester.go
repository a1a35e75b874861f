package ingester

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/metrics"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/torii"
)

// entitySource is the Torii surface the model ingester polls.
type entitySource interface {
	LandAndStakeEntitiesAfter(ctx context.Context, since time.Time) ([]torii.RawEntity, error)
}

// modelSink is the repository surface the model ingester writes to.
type modelSink interface {
	MaxModelAt(ctx context.Context) (time.Time, error)
	UpsertLand(ctx context.Context, land models.Land) error
	UpsertLandStake(ctx context.Context, stake models.LandStake) error
	UpsertAuction(ctx context.Context, a models.Auction) error
	LogIndexingError(ctx context.Context, worker string, eventID models.EventID, errType, message string, payload any) error
}

// ModelIngester mirrors the latest Land, LandStake and Auction snapshots
// into Postgres. Out-of-order updates are absorbed by the `at`-guarded
// upserts.
type ModelIngester struct {
	torii    entitySource
	repo     modelSink
	interval time.Duration
}

func NewModelIngester(client entitySource, repo modelSink, interval time.Duration) *ModelIngester {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ModelIngester{torii: client, repo: repo, interval: interval}
}

func (i *ModelIngester) Name() string { return "model_ingester" }

func (i *ModelIngester) Run(ctx context.Context) {
	log.Printf("[model_ingester] started (interval=%s)", i.interval)
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	i.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[model_ingester] shutting down")
			return
		case <-ticker.C:
			i.poll(ctx)
		}
	}
}

func (i *ModelIngester) poll(ctx context.Context) {
	since, err := i.repo.MaxModelAt(ctx)
	if err != nil {
		log.Printf("[model_ingester] read cursor: %v", err)
		return
	}
	if !since.IsZero() {
		since = since.Add(-cursorBuffer)
	}

	entities, err := i.torii.LandAndStakeEntitiesAfter(ctx, since)
	if err != nil {
		log.Printf("[model_ingester] fetch entities: %v", err)
		return
	}

	sort.Slice(entities, func(a, b int) bool { return entities[a].At.Before(entities[b].At) })

	for _, entity := range entities {
		if ctx.Err() != nil {
			return
		}
		if err := i.apply(ctx, entity); err != nil {
			log.Printf("[model_ingester] %s %s: %v", entity.Model, entity.ID, err)
			if logErr := i.repo.LogIndexingError(ctx, i.Name(), entity.ID, "model", err.Error(), string(entity.Data)); logErr != nil {
				log.Printf("[model_ingester] record model error: %v", logErr)
			}
			continue
		}
		metrics.ModelsUpserted.WithLabelValues(entity.Model).Inc()
	}
}

func (i *ModelIngester) apply(ctx context.Context, entity torii.RawEntity) error {
	switch entity.Model {
	case "Land":
		land, err := parseLand(entity)
		if err != nil {
			return err
		}
		return i.repo.UpsertLand(ctx, land)
	case "LandStake":
		stake, err := parseLandStake(entity)
		if err != nil {
			return err
		}
		return i.repo.UpsertLandStake(ctx, stake)
	case "Auction":
		auction, err := parseAuction(entity)
		if err != nil {
			return err
		}
		return i.repo.UpsertAuction(ctx, auction)
	default:
		return fmt.Errorf("unexpected model %q", entity.Model)
	}
}

// landLevel accepts the contract's enum both as a number and as its
// variant name.
type landLevel int

func (l *landLevel) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*l = landLevel(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("level is neither number nor string: %s", data)
	}
	switch s {
	case "Zero":
		*l = 0
	case "First":
		*l = 1
	case "Second":
		*l = 2
	default:
		return fmt.Errorf("unknown land level %q", s)
	}
	return nil
}

func parseLand(entity torii.RawEntity) (models.Land, error) {
	var raw struct {
		Location        models.Location `json:"location"`
		Owner           string          `json:"owner"`
		TokenUsed       string          `json:"token_used"`
		SellPrice       models.U256     `json:"sell_price"`
		Level           landLevel       `json:"level"`
		BlockDateBought models.U256     `json:"block_date_bought"`
	}
	if err := json.Unmarshal(entity.Data, &raw); err != nil {
		return models.Land{}, fmt.Errorf("decode Land: %w", err)
	}
	return models.Land{
		ID:              entity.ID,
		At:              entity.At,
		Location:        raw.Location,
		Owner:           models.NormalizeAddress(raw.Owner),
		TokenUsed:       models.NormalizeAddress(raw.TokenUsed),
		SellPrice:       raw.SellPrice,
		Level:           int(raw.Level),
		BlockDateBought: time.Unix(int64(raw.BlockDateBought.Uint64()), 0).UTC(),
	}, nil
}

func parseLandStake(entity torii.RawEntity) (models.LandStake, error) {
	var raw struct {
		Location          models.Location `json:"location"`
		Amount            models.U256     `json:"amount"`
		NeighborsInfoPack models.U256     `json:"neighbors_info_packed"`
	}
	if err := json.Unmarshal(entity.Data, &raw); err != nil {
		return models.LandStake{}, fmt.Errorf("decode LandStake: %w", err)
	}
	info := models.UnpackNeighborsInfo(raw.NeighborsInfoPack)
	return models.LandStake{
		ID:                            entity.ID,
		At:                            entity.At,
		Location:                      raw.Location,
		Amount:                        raw.Amount,
		EarliestClaimNeighborTime:     info.EarliestClaimNeighborTime,
		EarliestClaimNeighborLocation: info.EarliestClaimNeighborLocation,
		NumActiveNeighbors:            info.NumActiveNeighbors,
	}, nil
}

func parseAuction(entity torii.RawEntity) (models.Auction, error) {
	var raw struct {
		Location    models.Location `json:"land_location"`
		StartTime   models.U256     `json:"start_time"`
		StartPrice  models.U256     `json:"start_price"`
		FloorPrice  models.U256     `json:"floor_price"`
		DecayRate   models.U256     `json:"decay_rate"`
		IsFinished  bool            `json:"is_finished"`
		SoldAtPrice *models.U256    `json:"sold_at_price"`
	}
	if err := json.Unmarshal(entity.Data, &raw); err != nil {
		return models.Auction{}, fmt.Errorf("decode Auction: %w", err)
	}
	return models.Auction{
		ID:          entity.ID,
		At:          entity.At,
		Location:    raw.Location,
		StartTime:   time.Unix(int64(raw.StartTime.Uint64()), 0).UTC(),
		StartPrice:  raw.StartPrice,
		FloorPrice:  raw.FloorPrice,
		DecayRate:   raw.DecayRate,
		IsFinished:  raw.IsFinished,
		SoldAtPrice: raw.SoldAtPrice,
	}, nil
}
