/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names are the
  camelCase names existing clients already send and parse.

NUMBERS:
  profit is an exact decimal internally but travels as a plain JSON
  number (json.Number), never as a quoted string.

TYPES:
  SaveProfitRequest   POST /api/saveProfit body
  ProfitDTO           Full record, returned as "data" after a save
  SaveProfitResponse  {message, data}
  GetProfitResponse   {profit, startTime}
  MessageResponse     {message}, used for 404
  ErrorResponse       {error}

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-engine/profit"
)

// SaveProfitRequest is the body of POST /api/saveProfit.
// Omitted or null profit/startTime take their defaults.
type SaveProfitRequest struct {
	PlanID    string           `json:"planId"`
	Profit    *decimal.Decimal `json:"profit"`
	StartTime *decimal.Decimal `json:"startTime"`
}

var (
	maxMillis = decimal.NewFromInt(math.MaxInt64)
	minMillis = decimal.NewFromInt(math.MinInt64)
)

// ToInput converts the request into store input. Fractional start times
// are truncated to whole milliseconds; values outside int64 are rejected
// with profit.ErrInvalidStartTime.
func (r SaveProfitRequest) ToInput() (profit.UpsertInput, error) {
	in := profit.UpsertInput{PlanID: r.PlanID, Profit: r.Profit}
	if r.StartTime != nil {
		whole := r.StartTime.Truncate(0)
		if whole.GreaterThan(maxMillis) || whole.LessThan(minMillis) {
			return profit.UpsertInput{}, fmt.Errorf("%w: %s", profit.ErrInvalidStartTime, r.StartTime)
		}
		ms := whole.IntPart()
		in.StartTime = &ms
	}
	return in, nil
}

// ProfitDTO represents a profit record in API responses.
type ProfitDTO struct {
	PlanID    string      `json:"planId"`
	Profit    json.Number `json:"profit"`
	StartTime int64       `json:"startTime"`
	CreatedAt string      `json:"createdAt,omitempty"`
	UpdatedAt string      `json:"updatedAt,omitempty"`
}

// SaveProfitResponse is returned after a successful save.
type SaveProfitResponse struct {
	Message string    `json:"message"`
	Data    ProfitDTO `json:"data"`
}

// GetProfitResponse is returned by GET /api/getProfit.
type GetProfitResponse struct {
	Profit    json.Number `json:"profit"`
	StartTime int64       `json:"startTime"`
}

// MessageResponse carries a human readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toProfitDTO(rec profit.Record) ProfitDTO {
	dto := ProfitDTO{
		PlanID:    rec.PlanID,
		Profit:    json.Number(rec.Profit.String()),
		StartTime: rec.StartTime,
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}
