// internal/workers/oracle/extract-cards/models.go
package extractcards

// Policy selects which part of a response is scanned.
type Policy string

const (
	PolicyFullText          Policy = "full_text"
	PolicyTruncateAtInsight Policy = "truncate_at_insight"
)

// occurrence is one match of a card pattern in the scanned text.
type occurrence struct {
	cardIdx int
	start   int
	end     int
}
