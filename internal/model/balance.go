package model

import "time"

// Balance is one asset holding valued in USD.
type Balance struct {
	Asset    string  `json:"asset"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
	Total    float64 `json:"total"`
	USDValue float64 `json:"usdValue"`
}

// Credentials are exchange API keys. Key and Secret are stored encrypted.
type Credentials struct {
	Name      string    `db:"name"`
	APIKey    string    `db:"api_key"`
	APISecret string    `db:"api_secret"`
	Testnet   bool      `db:"testnet"`
	IsActive  bool      `db:"is_active"`
	UpdatedAt time.Time `db:"updated_at"`
}
