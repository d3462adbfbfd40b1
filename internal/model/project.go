package model

import "time"

type Project struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	OwnerID   int       `json:"owner_id"`
	Progress  float64   `json:"progress"` // cached percentage, 0..100
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Study struct {
	ID        int       `json:"id"`
	ProjectID int       `json:"project_id"`
	Title     string    `json:"title"`
	Progress  float64   `json:"progress"` // cached percentage, 0..100
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
