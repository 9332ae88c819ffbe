package models

// Requests for operator HTTP endpoints. Defined in domain for consistency and reuse.

type OpportunitiesRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type RollbackRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type GradualRolloutRequest struct {
	Percentage float64 `json:"percentage" validate:"gte=0,lte=100"`
}

type ExportRequest struct {
	Samples int `query:"samples" json:"samples" default:"200" validate:"gte=1,lte=2000"`
	Audit   int `query:"audit" json:"audit" default:"100" validate:"gte=1,lte=1000"`
}
