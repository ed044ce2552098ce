package models

import "time"

// Watchlist is a named set of tickers for a tenant.
type Watchlist struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WatchlistItem is a ticker on a watchlist, unique per (watchlist, ticker).
type WatchlistItem struct {
	ID          string    `json:"id" db:"id"`
	WatchlistID string    `json:"watchlist_id" db:"watchlist_id"`
	Ticker      string    `json:"ticker" db:"ticker"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CreateWatchlistRequest is the request for creating a watchlist
type CreateWatchlistRequest struct {
	Name    string   `json:"name" validate:"required"`
	Tickers []string `json:"tickers,omitempty"`
}

// AddWatchlistItemRequest is the request for adding a ticker to a watchlist
type AddWatchlistItemRequest struct {
	Ticker string `json:"ticker" validate:"required"`
}
