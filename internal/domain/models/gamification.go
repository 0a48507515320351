package models

// Gamification is the per-tenant XP and rank configuration. Only the
// configuration lives here; XP balances are kept elsewhere.
type Gamification struct {
	// XPRules maps an action name (e.g. "module_completed") to the XP it awards.
	XPRules        map[string]int `bson:"xp_rules,omitempty" json:"xp_rules,omitempty"`
	Ranks          []Rank         `bson:"ranks,omitempty" json:"ranks,omitempty"`
	VoteThresholds VoteThresholds `bson:"vote_thresholds" json:"vote_thresholds"`
}

// Rank is a named tier reached at MinXP.
type Rank struct {
	Name  string `bson:"name" json:"name"`
	MinXP int    `bson:"min_xp" json:"min_xp"`
}

// VoteThresholds are the vote counts needed to promote community items.
type VoteThresholds struct {
	SuggestionApprove int `bson:"suggestion_approve,omitempty" json:"suggestion_approve,omitempty"`
	RadarFeature      int `bson:"radar_feature,omitempty" json:"radar_feature,omitempty"`
}
