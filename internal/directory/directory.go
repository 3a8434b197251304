// Package directory exposes the network -> church -> activity hierarchy.
package directory

import (
	"context"
	"errors"
	"time"

	"cantus.org/internal/access"
)

var ErrNotFound = errors.New("directory: not found")

// Activity types.
const (
	ActivityTypeService = "service"
	ActivityTypeEvent   = "event"
)

type Network struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Church struct {
	ID        string    `json:"id"`
	NetworkID string    `json:"network_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type Activity struct {
	ID       string `json:"id"`
	ChurchID string `json:"church_id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Type     string `json:"type"`
}

// Service lists hierarchy entities. Networks and churches are readable by
// any approved user; activities are filtered by the caller's scope.
type Service interface {
	ListNetworks(ctx context.Context) ([]Network, error)
	ListChurches(ctx context.Context, networkID string) ([]Church, error)
	ListActivities(ctx context.Context, scope access.ScopeSet) ([]Activity, error)
}
