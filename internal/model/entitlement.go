package model

import "time"

// ModuleEntitlement toggles a platform module on or off for the deployment.
type ModuleEntitlement struct {
	Module    string    `json:"module"`
	Enabled   bool      `json:"enabled"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultModules seeds the entitlement table on first boot.
var DefaultModules = []string{
	"check_ins",
	"medication_tracking",
	"care_planning",
	"incident_reporting",
	"family_portal",
	"paper_form_intake",
}
