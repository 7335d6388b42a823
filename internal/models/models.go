package models

import "time"

// Source tags for a weather reading: who produced the condition currently stored.
const (
	SourceAPI       = "api"
	SourceCommunity = "community"
)

// Conditions is the fixed set of votable weather condition labels,
// matching the labels the upstream API reports.
var Conditions = []string{
	"Clear", "Clouds", "Rain", "Drizzle", "Thunderstorm", "Snow",
	"Mist", "Smoke", "Haze", "Dust", "Fog", "Sand", "Ash", "Squall", "Tornado",
}

// KnownCondition reports whether label is one of the votable condition labels.
func KnownCondition(label string) bool {
	for _, c := range Conditions {
		if c == label {
			return true
		}
	}
	return false
}

// User is a resident identity. Exactly one of GoogleID or GuestID is set.
// Reputation starts at a role-dependent default and only ever increases.
type User struct {
	ID         string    `json:"id"`
	GoogleID   string    `json:"googleId,omitempty"`
	GuestID    string    `json:"guestId,omitempty"`
	Email      string    `json:"email,omitempty"`
	OriginIP   string    `json:"-"`
	Reputation int       `json:"reputation"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Vote is a single immutable condition vote for a location.
type Vote struct {
	ID        string    `json:"id"`
	VoterID   string    `json:"voterId"`
	Location  string    `json:"location"`
	Condition string    `json:"condition"`
	Timestamp time.Time `json:"timestamp"`
}

// WeatherReading is the cached resolved weather for a location. A reading is
// authoritative only while fresh: readers treat it as absent once
// now - UpdatedAt exceeds the configured TTL.
type WeatherReading struct {
	Location  string    `json:"location"`
	Condition string    `json:"condition"`
	Temp      float64   `json:"temp"`
	Humidity  int       `json:"humidity"`
	WindSpeed float64   `json:"windSpeed"`
	Icon      string    `json:"icon,omitempty"`
	Rank      int       `json:"rank"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedAt time.Time `json:"createdAt"`
}
