package models

// Requests for the control-surface HTTP endpoints. Defined in domain for
// consistency and reuse.

type SignalRequest struct {
	Symbol string `param:"symbol" query:"symbol" json:"symbol" validate:"required"`
}

type SignalHistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=1000"`
}

type EVRequest struct {
	Symbol string `param:"symbol" query:"symbol" json:"symbol" validate:"required"`
}
