package models

import "time"

type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type Partner struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Company         string    `json:"company"`
	Website         string    `json:"website"`
	PartnershipType string    `json:"partnership_type"`
	Message         string    `json:"message"`
	CreatedAt       time.Time `json:"created_at"`
}

// Intake is the gated questionnaire a subscriber fills in after paying.
type Intake struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Context   string    `json:"context"`
	Narrative string    `json:"narrative"`
	CreatedAt time.Time `json:"created_at"`
}
