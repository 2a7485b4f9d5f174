package protocol

import "tradebridge/internal/models"

// Telemetry is pushed by the terminal on its own interval and never answered.
type Telemetry struct {
	Account   models.Account     `json:"accountSnapshot"`
	Prices    []models.PriceTick `json:"priceSnapshot"`
	Timestamp int64              `json:"timestamp"`
}

// AuthHeader carries the shared token on the telemetry handshake. Command
// requests carry it in the request body instead.
const AuthHeader = "X-Auth-Token"
