package gate

// MessageBody is the page-render JSON denial.
type MessageBody struct {
	Message string `json:"message"`
}

// QueryErrors is a query-language error list.
type QueryErrors struct {
	Errors []QueryError `json:"errors"`
}

type QueryError struct {
	Message    string               `json:"message"`
	Extensions QueryErrorExtensions `json:"extensions"`
}

type QueryErrorExtensions struct {
	Category string `json:"category"`
}
