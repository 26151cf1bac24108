package evaluation

// QueryItem is a single query/catalog item pair submitted for scoring.
type QueryItem struct {
	Query           string            `json:"query"`
	ItemTitle       string            `json:"item_title"`
	ItemDescription string            `json:"item_description"`
	ItemCategory    string            `json:"item_category"`
	ItemAttributes  map[string]string `json:"item_attributes"`
	ItemPrice       *float64          `json:"item_price,omitempty"`
}

// Result is the structured relevance verdict for one QueryItem.
type Result struct {
	RelevanceScore int     `json:"relevance_score"`
	ReasonCode     string  `json:"reason_code"`
	Confidence     float64 `json:"confidence"`
	AIReasoning    string  `json:"ai_reasoning"`
}

type BatchRequest struct {
	Evaluations []QueryItem `json:"evaluations"`
}

type BatchResponse struct {
	Results []*Result `json:"results"`
}
