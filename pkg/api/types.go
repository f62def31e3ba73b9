package api

// UsageResponse represents the complete quota standing for a user
type UsageResponse struct {
	UserID string        `json:"user_id"`
	Plan   PlanInfo      `json:"plan"`
	Day    string        `json:"day"`
	Calls  CallUsage     `json:"calls"`
	Docs   DocumentUsage `json:"documents"`
}

// PlanInfo describes the effective plan governing the user
type PlanInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Subscribed  bool   `json:"subscribed"`
	TopTier     bool   `json:"top_tier"`
}

// CallUsage represents the daily call quota standing
type CallUsage struct {
	Used       int            `json:"used"`
	Limit      int            `json:"limit"`
	Remaining  int            `json:"remaining"`
	ByCategory map[string]int `json:"by_category,omitempty"`
}

// DocumentUsage represents the document limit standing
type DocumentUsage struct {
	Total         int  `json:"total"`
	EditableCount int  `json:"editable_count"`
	ReadOnlyCount int  `json:"read_only_count"`
	Limit         int  `json:"limit"`
	OverLimit     bool `json:"over_limit"`
	CanCreateNew  bool `json:"can_create_new"`
}

// PlanResponse is one entry in the plan catalog listing
type PlanResponse struct {
	Name                 string `json:"name"`
	DisplayName          string `json:"display_name"`
	DailyCallQuota       int    `json:"daily_call_quota"`
	MaxEditableDocuments int    `json:"max_editable_documents"`
	MonthlyPricePennies  int    `json:"monthly_price_pennies"`
	YearlyPricePennies   int    `json:"yearly_price_pennies"`
	TopTier              bool   `json:"top_tier"`
}

// DocumentResponse is one entry in the ranked document listing
type DocumentResponse struct {
	ID        string `json:"id"`
	Position  int    `json:"position"`
	Editable  bool   `json:"editable"`
	CreatedAt string `json:"created_at"`
}
