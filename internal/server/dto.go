package server

import (
	"guildline/internal/domain"
)

// Request payloads

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CreateActorRequest struct {
	Name    string `json:"name" minLength:"1"`
	Alias   string `json:"alias,omitempty"`
	Email   string `json:"email" format:"email"`
	Country string `json:"country,omitempty"`
	Address string `json:"address,omitempty"`
	Role    string `json:"role,omitempty" enum:"ADMIN,ASSASSIN"`
	Coins   int64  `json:"coins,omitempty" minimum:"0"`
}

type SetActorStatusRequest struct {
	Status string `json:"status" enum:"ACTIVE,INACTIVE"`
}

type CreateMissionRequest struct {
	Description string `json:"description"`
	Details     string `json:"details"`
	PaymentType string `json:"payment_type" enum:"COINS,BLOOD_DEBT,BLOOD_DEBT_COLLECTION"`
	CoinsAmount *int64 `json:"coins_amount,omitempty"`
	// AssignedTo is the debtor of a BLOOD_DEBT_COLLECTION mission.
	AssignedTo string `json:"assigned_to,omitempty"`
}

type CoinsRequest struct {
	Coins int64 `json:"coins" minimum:"1"`
}

// Response payloads

type paginatedMissions struct {
	Items      []domain.MissionView `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedAssassins struct {
	Items      []domain.AssassinListing `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

type paginatedDebts struct {
	Items      []domain.BloodDebt `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type paginatedTransactions struct {
	Items      []domain.Transaction `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type counterparties struct {
	Items []domain.DebtCounterparty `json:"items"`
}
