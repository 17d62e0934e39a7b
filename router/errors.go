package router

var (
	// ErrInvalidData is sent when a value in request is invalid
	ErrInvalidData = "INVALID_DATA"
	// ErrInternal is sent when an internal server error occurs.
	ErrInternal = "INTERNAL_ERROR"
	// ErrParsing is sent when an error occurs in parsing the request
	ErrParsing = "PARSING_ERROR"
	// ErrNotFound is sent when a referenced record, entity or upload token
	// does not exist
	ErrNotFound = "NOT_FOUND"
)
