package model

// Page is one fixed-size slice of a completed job's result rows.
type Page struct {
	PageNumber int                 `json:"pageNumber"`
	PageSize   int                 `json:"pageSize"`
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	IsLastPage bool             `json:"isLastPage"`
}
