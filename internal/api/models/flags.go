package models

import "time"

// FeatureFlag is one runtime switch.
type FeatureFlag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FeatureFlagList is the admin listing document.
type FeatureFlagList struct {
	Flags []FeatureFlag `json:"flags"`
}

// UpdateFeatureFlagRequest sets a flag value.
type UpdateFeatureFlagRequest struct {
	Value any `json:"value"`
}
