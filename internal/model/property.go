package model

import "time"

// Property is a listing record owned by a tenant. Only the fields the status
// engine reads or writes back are modelled.
type Property struct {
	ID        int64         `json:"id"`
	Tenant    string        `json:"tenant"`
	Address   string        `json:"address"`
	Status    ListingStatus `json:"status"`
	Price     float64       `json:"price"`
	Agent     string        `json:"agent,omitempty"`
	Company   string        `json:"company,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	Paid      bool          `json:"paid"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
