package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidID       = 1004
	ErrCodeMissingRequired = 1009
	ErrCodeInvalidField    = 1020
	ErrCodeInvalidFile     = 1021
	ErrCodeFileTooLarge    = 1022
	ErrCodeMissingFile     = 1023
	ErrCodeTooManyFiles    = 1024
	ErrCodeUnknownFile     = 1025
	ErrCodeInvalidForm     = 1026

	// Domain state (2xxx)
	ErrCodeRecordNotFound   = 2001
	ErrCodeResourceNotFound = 2002
	ErrCodeBlobNotFound     = 2003
	ErrCodeDuplicate        = 2101
	ErrCodeConflict         = 2102

	// Limits (3xxx)
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeStorageFailure = 4003
	ErrCodeNotImplemented = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodeRecordNotFound
	case 409:
		return ErrCodeConflict
	case 413:
		return ErrCodeRequestTooLarge
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
