package domain

import (
	"context"
	"time"
)

// CampaignType is a named behavioural profile shared by campaign
// instances. Priority follows the schedule convention: lower is more
// important.
type CampaignType struct {
	Name                    string
	RespectExclusionWindows bool
	EnableFollowups         bool
	DaysBeforeEvent         int
	TargetAllContacts       bool
	Priority                int
}

// CampaignInstance is a concrete realisation of a campaign type with
// its own templates and activity bounds. Nil bounds are open-ended.
// Metadata is opaque JSON; follow-up template overrides live under its
// followup_templates key.
type CampaignInstance struct {
	ID              int64
	CampaignType    string
	InstanceName    string
	EmailTemplate   *string
	SMSTemplate     *string
	ActiveStartDate *time.Time
	ActiveEndDate   *time.Time
	Metadata        *string
}

// CampaignMembership targets one contact with one campaign instance.
type CampaignMembership struct {
	ContactID   int64
	TriggerDate *time.Time
}

// Campaign membership statuses.
const (
	MembershipStatusPending = "pending"
)

// CampaignRepository reads campaign configuration.
type CampaignRepository interface {
	// ActiveInstances returns instances whose activity window contains
	// today. Null bounds are unbounded.
	ActiveInstances(ctx context.Context, today time.Time) ([]*CampaignInstance, error)

	// GetType returns the active campaign type with the given name, or
	// nil if absent or inactive.
	GetType(ctx context.Context, name string) (*CampaignType, error)

	// PendingMemberships returns pending (contact, trigger date) tuples
	// for an instance.
	PendingMemberships(ctx context.Context, instanceID int64) ([]*CampaignMembership, error)

	// GetInstance returns the instance with the given id, or nil.
	GetInstance(ctx context.Context, id int64) (*CampaignInstance, error)

	// FollowupsEnabled reports whether the instance's campaign type has
	// follow-ups enabled.
	FollowupsEnabled(ctx context.Context, instanceID int64) (bool, error)
}
