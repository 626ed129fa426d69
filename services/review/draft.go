package review

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the review state of a draft.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusModified Status = "modified"
	StatusRejected Status = "rejected"
)

// Draft is one machine-generated suggestion awaiting human review. Drafts
// live in memory only; a process restart discards them.
//
// Resolving an already-terminal draft overwrites the previous resolution.
// The review UI serializes actions per draft, so last-write-wins is the
// simplest contract that cannot strand a draft in a wrong state.
type Draft struct {
	ID            string
	Purpose       string
	Provider      string
	Model         string
	Status        Status
	QualityRating *int
	QualityNotes  string
	Modifications string
	CreatedAt     time.Time
	ReviewedAt    *time.Time
}

// NewDraft creates a pending draft. The ID is generated once and never
// changes.
func NewDraft(purpose, provider, model string) *Draft {
	return &Draft{
		ID:        uuid.New().String(),
		Purpose:   purpose,
		Provider:  provider,
		Model:     model,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Accept marks the draft accepted with an optional quality rating and notes.
func (d *Draft) Accept(rating *int, notes string) error {
	if err := validateRating(rating); err != nil {
		return err
	}
	d.Status = StatusAccepted
	d.QualityRating = rating
	d.QualityNotes = notes
	d.Modifications = ""
	d.markReviewed()
	return nil
}

// Modify marks the draft modified, storing the reviewer's replacement text.
func (d *Draft) Modify(modifications string, rating *int) error {
	if modifications == "" {
		return fmt.Errorf("modification text is required")
	}
	if err := validateRating(rating); err != nil {
		return err
	}
	d.Status = StatusModified
	d.Modifications = modifications
	d.QualityRating = rating
	d.QualityNotes = ""
	d.markReviewed()
	return nil
}

// Reject marks the draft rejected with the reviewer's notes.
func (d *Draft) Reject(notes string) error {
	d.Status = StatusRejected
	d.QualityNotes = notes
	d.QualityRating = nil
	d.Modifications = ""
	d.markReviewed()
	return nil
}

// Pending reports whether the draft still awaits review.
func (d *Draft) Pending() bool {
	return d.Status == StatusPending
}

func (d *Draft) markReviewed() {
	now := time.Now().UTC()
	d.ReviewedAt = &now
}

// clone returns an independent copy, including the pointer fields.
func (d *Draft) clone() *Draft {
	out := *d
	if d.QualityRating != nil {
		v := *d.QualityRating
		out.QualityRating = &v
	}
	if d.ReviewedAt != nil {
		ts := *d.ReviewedAt
		out.ReviewedAt = &ts
	}
	return &out
}

func validateRating(rating *int) error {
	if rating == nil {
		return nil
	}
	if *rating < 1 || *rating > 5 {
		return fmt.Errorf("quality rating must be between 1 and 5, got %d", *rating)
	}
	return nil
}

// ToDict returns the external representation consumed by the review UI.
// Unset optional fields are omitted entirely: a still-pending draft carries
// no rating, notes, modification or review-time keys.
func (d *Draft) ToDict() map[string]interface{} {
	out := map[string]interface{}{
		"draft_id":   d.ID,
		"purpose":    d.Purpose,
		"provider":   d.Provider,
		"model":      d.Model,
		"status":     string(d.Status),
		"created_at": d.CreatedAt.Format(time.RFC3339),
	}
	if d.QualityRating != nil {
		out["quality_rating"] = *d.QualityRating
	}
	if d.QualityNotes != "" {
		out["quality_notes"] = d.QualityNotes
	}
	if d.Modifications != "" {
		out["modifications"] = d.Modifications
	}
	if d.ReviewedAt != nil {
		out["reviewed_at"] = d.ReviewedAt.Format(time.RFC3339)
	}
	return out
}
