package model

import (
	"fmt"
	"time"
)

// EntityKind names the concrete type of an entity in the graph.
type EntityKind string

const (
	KindPlan              EntityKind = "DataManagementPlan"
	KindProject           EntityKind = "Project"
	KindFunding           EntityKind = "Funding"
	KindAffiliation       EntityKind = "Affiliation"
	KindContributor       EntityKind = "Contributor"
	KindContributorRole   EntityKind = "ContributorRole"
	KindDataset           EntityKind = "Dataset"
	KindDistribution      EntityKind = "Distribution"
	KindHost              EntityKind = "Host"
	KindLicense           EntityKind = "License"
	KindMetadatum         EntityKind = "Metadatum"
	KindStatement         EntityKind = "SecurityPrivacyStatement"
	KindTechnicalResource EntityKind = "TechnicalResource"
	KindCost              EntityKind = "Cost"
)

// ValidKinds defines the closed set of entity kinds.
var ValidKinds = map[EntityKind]bool{
	KindPlan:              true,
	KindProject:           true,
	KindFunding:           true,
	KindAffiliation:       true,
	KindContributor:       true,
	KindContributorRole:   true,
	KindDataset:           true,
	KindDistribution:      true,
	KindHost:              true,
	KindLicense:           true,
	KindMetadatum:         true,
	KindStatement:         true,
	KindTechnicalResource: true,
	KindCost:              true,
}

// OwnerRef is a discriminated reference to any entity in the graph.
type OwnerRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// IsZero reports whether the reference points nowhere.
func (r OwnerRef) IsZero() bool {
	return r.Kind == "" || r.ID == ""
}

func (r OwnerRef) String() string {
	return fmt.Sprintf("%s(%s)", r.Kind, r.ID)
}

// Base carries the bookkeeping fields every entity has.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Persisted is true once the entity was read from or written to storage.
	Persisted bool `json:"-"`
}

// Init assigns a fresh id and creation time to a new entity.
func (b *Base) Init(id string, now time.Time) {
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Persisted = false
}

// Touch records a modification time.
func (b *Base) Touch(now time.Time) {
	b.UpdatedAt = now
}
