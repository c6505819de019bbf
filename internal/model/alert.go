package model

import "time"

// Alert conditions.
const (
	ConditionAbove = "above"
	ConditionBelow = "below"
)

// PriceAlert fires once when a symbol crosses its target price.
type PriceAlert struct {
	ID          string     `json:"id" db:"id"`
	Symbol      string     `json:"symbol" db:"symbol"`
	TargetPrice float64    `json:"targetPrice" db:"target_price"`
	Condition   string     `json:"condition" db:"condition"`
	Message     string     `json:"message" db:"message"`
	IsActive    bool       `json:"-" db:"is_active"`
	Triggered   bool       `json:"triggered" db:"triggered"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty" db:"triggered_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}
