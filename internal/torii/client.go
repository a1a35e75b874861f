// Package torii is the client for the upstream Torii indexer. The client
// is stateless: callers own their cursors and call the *After methods with
// a `since` timestamp every poll tick. Results are complete for
// `at > since` but not guaranteed sorted.
package torii

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

const (
	requestTimeout = 20 * time.Second
	sqlTimeFormat  = "2006-01-02 15:04:05"
)

// RawEvent is one upstream event envelope: {name, data, at, event_id}.
type RawEvent struct {
	Name    string
	Data    json.RawMessage
	At      time.Time
	EventID models.EventID
}

// RawEntity is one upstream model snapshot (Land, LandStake or Auction).
type RawEntity struct {
	Model string
	Data  json.RawMessage
	At    time.Time
	ID    models.EventID
}

type Client struct {
	baseURL      string
	worldAddress string
	http         *http.Client
	limiter      *rate.Limiter
}

func NewClient(baseURL, worldAddress string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		worldAddress: worldAddress,
		http:         &http.Client{Timeout: requestTimeout},
		// Torii instances are shared infra; cap our poll bursts.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Query runs one statement against Torii's SQL endpoint and returns the
// rows as generic maps. This is the REST-over-SQL adapter; the typed
// *After methods below are built on it.
func (c *Client) Query(ctx context.Context, query string) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/sql?query=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("torii request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("torii status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("torii decode: %w", err)
	}
	return rows, nil
}

// EventsAfter returns every historical event with executed_at > since.
func (c *Client) EventsAfter(ctx context.Context, since time.Time) ([]RawEvent, error) {
	query := fmt.Sprintf(
		`SELECT event_id, model_name, data, executed_at FROM event_messages_historical WHERE executed_at > '%s'`,
		since.UTC().Format(sqlTimeFormat),
	)
	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	events := make([]RawEvent, 0, len(rows))
	for _, row := range rows {
		at, err := parseSQLTime(row["executed_at"])
		if err != nil {
			return nil, fmt.Errorf("event executed_at: %w", err)
		}
		events = append(events, RawEvent{
			Name:    EventName(stringField(row, "model_name")),
			Data:    rawField(row, "data"),
			At:      at,
			EventID: models.EventID(stringField(row, "event_id")),
		})
	}
	return events, nil
}

// LandAndStakeEntitiesAfter returns Land, LandStake and Auction snapshots
// updated after since.
func (c *Client) LandAndStakeEntitiesAfter(ctx context.Context, since time.Time) ([]RawEntity, error) {
	query := fmt.Sprintf(
		`SELECT id, model_name, data, updated_at FROM entities_historical WHERE model_name IN ('Land','LandStake','Auction') AND updated_at > '%s'`,
		since.UTC().Format(sqlTimeFormat),
	)
	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	entities := make([]RawEntity, 0, len(rows))
	for _, row := range rows {
		at, err := parseSQLTime(row["updated_at"])
		if err != nil {
			return nil, fmt.Errorf("entity updated_at: %w", err)
		}
		entities = append(entities, RawEntity{
			Model: EventName(stringField(row, "model_name")),
			Data:  rawField(row, "data"),
			At:    at,
			ID:    models.EventID(stringField(row, "id")),
		})
	}
	return entities, nil
}

// EventName strips the world namespace prefix and the Event suffix from a
// Torii model name: "ponzi_land-LandBoughtEvent" -> "LandBought".
func EventName(model string) string {
	if i := strings.LastIndex(model, "-"); i >= 0 {
		model = model[i+1:]
	}
	return strings.TrimSuffix(model, "Event")
}

func stringField(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

// rawField re-encodes the row field as JSON. Torii returns the data column
// either as a JSON string or as an inline object depending on transport.
func rawField(row map[string]any, key string) json.RawMessage {
	switch v := row[key].(type) {
	case nil:
		return nil
	case string:
		return json.RawMessage(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return raw
	}
}

func parseSQLTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp is %T, want string", v)
	}
	for _, layout := range []string{sqlTimeFormat, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
