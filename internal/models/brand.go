package models

import "time"

// Group status values.
const (
	StatusRunning = "running"
	StatusPaused  = "paused"
)

// Platforms a group can target. Unknown values are tolerated in stored
// documents but fail at fetch time (no fetcher registered).
const (
	PlatformYouTube   = "youtube"
	PlatformTwitter   = "twitter"
	PlatformReddit    = "reddit"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
)

// Cadence is a group's configured re-run period, one of the fixed buckets.
type Cadence string

const (
	Every5m  Cadence = "5m"
	Every10m Cadence = "10m"
	Every15m Cadence = "15m"
	Every30m Cadence = "30m"
	Every1h  Cadence = "1h"
	Every2h  Cadence = "2h"
)

var cadencePeriods = map[Cadence]time.Duration{
	Every5m:  5 * time.Minute,
	Every10m: 10 * time.Minute,
	Every15m: 15 * time.Minute,
	Every30m: 30 * time.Minute,
	Every1h:  time.Hour,
	Every2h:  2 * time.Hour,
}

// Cadences lists every valid bucket in ascending period order.
func Cadences() []Cadence {
	return []Cadence{Every5m, Every10m, Every15m, Every30m, Every1h, Every2h}
}

// Period returns the tick period for the cadence, or zero if invalid.
func (c Cadence) Period() time.Duration {
	return cadencePeriods[c]
}

// Valid reports whether the cadence is one of the fixed buckets.
func (c Cadence) Valid() bool {
	_, ok := cadencePeriods[c]
	return ok
}

// KeywordGroup is an independently schedulable slice of a brand's
// monitoring configuration. Groups are embedded in their brand document
// and addressed by ID only within it.
type KeywordGroup struct {
	ID              string     `json:"id"`
	GroupName       string     `json:"groupName"`
	Keywords        []string   `json:"keywords"`
	IncludeKeywords []string   `json:"includeKeywords,omitempty"`
	ExcludeKeywords []string   `json:"excludeKeywords,omitempty"`
	Platforms       []string   `json:"platforms"`
	AssignedUsers   []string   `json:"assignedUsers,omitempty"`
	Language        string     `json:"language,omitempty"`
	Country         string     `json:"country,omitempty"`
	Cadence         Cadence    `json:"cadence"`
	Status          string     `json:"status"`
	LastRun         *time.Time `json:"lastRun,omitempty"`
	NextRun         *time.Time `json:"nextRun,omitempty"`
}

// Brand is a monitored organization. BrandName is unique across the store
// and doubles as the document ID.
type Brand struct {
	BrandName      string         `json:"brandName"`
	Description    string         `json:"description,omitempty"`
	AvatarURL      string         `json:"avatarUrl,omitempty"`
	BrandColor     string         `json:"brandColor,omitempty"`
	AIFriendlyName string         `json:"aiFriendlyName,omitempty"`
	TicketCreation bool           `json:"ticketCreation"`
	KeywordGroups  []KeywordGroup `json:"keywordGroups,omitempty"`
	AssignedUsers  []string       `json:"assignedUsers,omitempty"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Group returns the embedded group with the given ID, or nil.
func (b *Brand) Group(id string) *KeywordGroup {
	for i := range b.KeywordGroups {
		if b.KeywordGroups[i].ID == id {
			return &b.KeywordGroups[i]
		}
	}
	return nil
}
