// Package events defines the payloads the engine emits on market creation,
// bet placement, resolution and settlement, and the publishers that carry
// them to Redis and Kafka.
package events

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// Channels the engine publishes on.
const (
	ChannelMarkets     = "markets"
	ChannelBets        = "bets"
	ChannelSettlements = "settlements"
)

// Event type names carried in Envelope.Type.
const (
	TypeMarketCreated  = "market_created"
	TypeBetPlaced      = "bet_placed"
	TypeMarketResolved = "market_resolved"
	TypeMarketSettled  = "market_settled"
)

// Envelope wraps every payload with its type and emission time.
type Envelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type MarketCreated struct {
	MarketID       string          `json:"market_id"`
	Slug           string          `json:"slug"`
	Title          string          `json:"title"`
	Category       domain.Category `json:"category"`
	ResolutionDate time.Time       `json:"resolution_date"`
	CreatedBy      string          `json:"created_by,omitempty"`
}

type BetPlaced struct {
	BetID         string          `json:"bet_id"`
	MarketID      string          `json:"market_id"`
	UserID        string          `json:"user_id"`
	Position      domain.Position `json:"position"`
	StakeAmount   int64           `json:"stake_amount"`
	Confidence    int             `json:"confidence"`
	TotalYesStake int64           `json:"total_yes_stake"`
	TotalNoStake  int64           `json:"total_no_stake"`
	YesPercent    int             `json:"yes_percent"`
	NoPercent     int             `json:"no_percent"`
}

type MarketResolved struct {
	MarketID    string          `json:"market_id"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Outcome     domain.Position `json:"outcome"`
	TotalPool   int64           `json:"total_pool"`
	WinningPool int64           `json:"winning_pool"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

type MarketSettled struct {
	domain.SettlementSummary
	SettledAt time.Time `json:"settled_at"`
}

// Encode marshals data into an Envelope of the given type.
func Encode(eventType string, data any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Ts: at.UTC(), Data: raw})
}

// Decode unmarshals an Envelope.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
