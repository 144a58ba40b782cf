package models

// APIRequest is the common request structure for the admin API.
// Every call names its operation in the "actions" field.
type APIRequest struct {
	Actions string `json:"actions"`
}

// APIResponse is the envelope of every admin API response.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}
