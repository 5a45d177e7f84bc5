package models

// Participant is the engine's view of a registered entrant. Registration,
// eligibility and payment live elsewhere; the engine only needs a stable
// identifier, a display name for denormalized bracket views, and an
// optional external rating used by ranked seeding.
type Participant struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
	Rating      *int   `json:"rating,omitempty"`
}
