package models

import "time"

// Client represents a customer who brings equipment in for repair
type Client struct {
	ID             int64     `json:"id" db:"id"`
	FullName       string    `json:"full_name" db:"full_name"`
	DocumentNumber *string   `json:"document_number,omitempty" db:"document_number"`
	PhoneNumber    *string   `json:"phone_number,omitempty" db:"phone_number"`
	Email          *string   `json:"email,omitempty" db:"email"`
	Address        *string   `json:"address,omitempty" db:"address"`
	Notes          *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ClientFilters defines the available filters for querying clients.
type ClientFilters struct {
	Search   *string `form:"search"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}
