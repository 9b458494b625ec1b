// internal/models/job.go
package models

import "strings"

// Job is one queued chat turn. The JSON shape is the queue wire format.
type Job struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// Valid reports whether both fields carry non-blank text.
func (j *Job) Valid() bool {
	return j != nil && strings.TrimSpace(j.UserID) != "" && strings.TrimSpace(j.Message) != ""
}

// JobKind classifies what a chat turn asks for.
type JobKind string

const (
	JobKindChat          JobKind = "chat"
	JobKindHoroscope     JobKind = "horoscope"
	JobKindMoonPhase     JobKind = "moon_phase"
	JobKindCosmicWeather JobKind = "cosmic_weather"
)
