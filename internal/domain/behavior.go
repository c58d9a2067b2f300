package domain

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Follow-up tiers, from warmest to coldest. Lower priority number is
// more important.
const (
	FollowupHQWithYes   = "followup_4_hq_with_yes"
	FollowupHQNoYes     = "followup_3_hq_no_yes"
	FollowupClickedNoHQ = "followup_2_clicked_no_hq"
	FollowupCold        = "followup_1_cold"
)

// FollowupPriorities maps each tier to its base priority.
var FollowupPriorities = map[string]int{
	FollowupHQWithYes:   1,
	FollowupHQNoYes:     2,
	FollowupClickedNoHQ: 3,
	FollowupCold:        4,
}

// FollowupTemplates maps each tier to its default email template.
var FollowupTemplates = map[string]string{
	FollowupCold:        "followup_cold_template",
	FollowupClickedNoHQ: "followup_clicked_template",
	FollowupHQNoYes:     "followup_hq_no_conditions_template",
	FollowupHQWithYes:   "followup_hq_with_conditions_template",
}

// ContactBehavior captures what a contact did after receiving a
// message: link clicks and health-question (eligibility) answers.
type ContactBehavior struct {
	ContactID               int64
	ClickedLinks            bool
	AnsweredHealthQuestions bool
	HasMedicalConditions    bool
	LastClickAt             *time.Time
	LastEligibilityAt       *time.Time
}

// FollowupTier selects the behaviour tier. Tiers are mutually
// exclusive; health-question answers dominate clicks.
func (b *ContactBehavior) FollowupTier() string {
	if b.AnsweredHealthQuestions {
		if b.HasMedicalConditions {
			return FollowupHQWithYes
		}
		return FollowupHQNoYes
	}
	if b.ClickedLinks {
		return FollowupClickedNoHQ
	}
	return FollowupCold
}

// HasConditionsInMetadata inspects eligibility-event metadata for any
// indication of reported medical conditions: an explicit flag, a
// positive yes-answer count, or any truthy key mentioning "condition".
func HasConditionsInMetadata(metadata string) bool {
	if !gjson.Valid(metadata) {
		return false
	}
	parsed := gjson.Parse(metadata)
	if parsed.Get("has_medical_conditions").Bool() {
		return true
	}
	if parsed.Get("main_questions_yes_count").Int() > 0 {
		return true
	}
	found := false
	parsed.ForEach(func(key, value gjson.Result) bool {
		if strings.Contains(strings.ToLower(key.String()), "condition") && value.Bool() {
			found = true
			return false
		}
		return true
	})
	return found
}

// EligibilityEvent is the latest eligibility_answered event for a
// contact, with its raw JSON metadata.
type EligibilityEvent struct {
	Metadata  string
	CreatedAt time.Time
}

// BehaviorRepository queries tracking clicks and contact events.
type BehaviorRepository interface {
	// LastClick returns the timestamp of the most recent click at or
	// after since, or nil if the contact has not clicked.
	LastClick(ctx context.Context, contactID int64, since time.Time) (*time.Time, error)

	// LatestEligibility returns the most recent eligibility_answered
	// event at or after since, or nil if none exists.
	LatestEligibility(ctx context.Context, contactID int64, since time.Time) (*EligibilityEvent, error)
}
