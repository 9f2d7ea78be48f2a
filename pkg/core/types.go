package core

import (
	"time"
)

// Collection is a named category of content in the upstream CMS.
type Collection struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	DisplayName  string `json:"displayName"`
	SingularName string `json:"singularName"`
}

// Item is a single mirrored content record. SearchText is derived from
// FieldData and must never be set independently of it; use NewItem or
// SetFieldData.
type Item struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	CollectionID   string    `json:"collectionId"`
	CollectionSlug string    `json:"collectionSlug"`
	FieldData      FieldData `json:"fieldData"`
	SearchText     string    `json:"searchText"`
}

// NewItem builds an item of collection c, deriving name, slug and search text
// from fd.
func NewItem(c Collection, id string, fd FieldData) Item {
	item := Item{
		ID:             id,
		CollectionID:   c.ID,
		CollectionSlug: c.Slug,
	}
	item.SetFieldData(fd)
	return item
}

// SetFieldData replaces the item's fields and recomputes everything derived
// from them.
func (i *Item) SetFieldData(fd FieldData) {
	i.FieldData = fd
	i.Name = fd.String("name")
	i.Slug = fd.String("slug")
	i.SearchText = BuildSearchText(fd)
}

// Result projects the item into what search endpoints return.
func (i Item) Result() Result {
	return Result{
		ID:           i.ID,
		Name:         i.Name,
		Slug:         i.Slug,
		CollectionID: i.CollectionID,
		FieldData:    i.FieldData,
	}
}

// Result is a search hit.
type Result struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	CollectionID string    `json:"collectionId"`
	FieldData    FieldData `json:"fieldData"`
}

// Snapshot is the complete set of collections and items captured by one sync.
// Stores replace their content with a snapshot as a whole.
type Snapshot struct {
	Collections []Collection
	Items       []Item
	SyncedAt    time.Time
}

// Counts returns the number of items per collection, in collection order.
func (s *Snapshot) Counts() []CollectionCount {
	perID := make(map[string]int, len(s.Collections))
	for _, item := range s.Items {
		perID[item.CollectionID]++
	}
	counts := make([]CollectionCount, 0, len(s.Collections))
	for _, c := range s.Collections {
		counts = append(counts, CollectionCount{Slug: c.Slug, ItemCount: perID[c.ID]})
	}
	return counts
}

// CollectionCount is the per-collection entry of a sync report.
type CollectionCount struct {
	Slug      string `json:"slug"`
	ItemCount int    `json:"itemCount"`
}

// SyncReport summarizes a completed sync run.
type SyncReport struct {
	RunID            string            `json:"runId"`
	CollectionsCount int               `json:"collectionsCount"`
	ItemsCount       int               `json:"itemsCount"`
	Collections      []CollectionCount `json:"collections"`
	SyncedAt         time.Time         `json:"syncedAt"`
	Duration         time.Duration     `json:"-"`
}

// Query is a search request against a store. A nil CollectionIDs means no
// collection restriction. Limit <= 0 means uncapped.
type Query struct {
	Text          string
	CollectionIDs []string
	Limit         int
}
