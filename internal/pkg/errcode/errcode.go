package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrTooLarge
	ErrAIUnavailable
	ErrNoContext
)
