package web

// messages.go maps import errors to user-facing messages with codes for
// support reference.
//
// Codes are grouped by category:
//
//	CFG001-CFG099   processor configuration (HTTP 400)
//	IMP001-IMP099   import runs and their ids
//	FILE001-FILE099 uploaded files
//	DB001-DB099     storage
//	RATE001         request throttling
//	ERR000          fallback; check the logs for the technical error
//
// Sentinel errors are matched with errors.Is first. Errors that only
// carry text, e.g. from the database driver, fall back to a
// case-insensitive substring match. The first match wins.

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
	Status  int    // HTTP status
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{core.ErrInvalidConfiguration, UserMessage{
		Message: "The processor configuration contains an invalid name",
		Action:  "Check the processor names in the import configuration",
		Code:    "CFG001", Status: http.StatusBadRequest,
	}},
	{core.ErrClassNotFound, UserMessage{
		Message: "A configured processor does not exist",
		Action:  "Check the processor names in the import configuration",
		Code:    "CFG002", Status: http.StatusBadRequest,
	}},
	{core.ErrInterfaceMismatch, UserMessage{
		Message: "A configured processor cannot handle this format",
		Action:  "Check the processor implementations in the import configuration",
		Code:    "CFG003", Status: http.StatusBadRequest,
	}},
	{core.ErrUnknownFormat, UserMessage{
		Message: "Unknown import format",
		Action:  "Use format csv or xml",
		Code:    "CFG004", Status: http.StatusBadRequest,
	}},
	{core.ErrImportNotFound, UserMessage{
		Message: "Import not found",
		Action:  "The import may have expired. Please start a new import",
		Code:    "IMP001", Status: http.StatusNotFound,
	}},
	{core.ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002", Status: http.StatusServiceUnavailable,
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP003", Status: http.StatusRequestTimeout,
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try importing a smaller file or check your connection",
		Code:    "IMP004", Status: http.StatusGatewayTimeout,
	}},
	{errImportRunning, UserMessage{
		Message: "The import is still running",
		Action:  "Wait for the import to finish",
		Code:    "IMP006", Status: http.StatusConflict,
	}},
	{domain.ErrInvalidInput, UserMessage{
		Message: "The request contains invalid input",
		Action:  "Check the request parameters",
		Code:    "IMP005", Status: http.StatusBadRequest,
	}},
	{domain.ErrNotFound, UserMessage{
		Message: "Item not found",
		Action:  "The item may have been deleted in the meantime",
		Code:    "DB008", Status: http.StatusNotFound,
	}},
}

type patternMessage struct {
	pattern string
	msg     UserMessage
}

var patternMessages = []patternMessage{
	{"request body too large", UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001", Status: http.StatusRequestEntityTooLarge,
	}},
	{"no file provided", UserMessage{
		Message: "No file was provided",
		Action:  "Send the file in the form field \"file\"",
		Code:    "FILE004", Status: http.StatusBadRequest,
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a file with data records",
		Code:    "FILE005", Status: http.StatusBadRequest,
	}},
	{"invalid form", UserMessage{
		Message: "The upload could not be read",
		Action:  "Send the file as multipart/form-data",
		Code:    "FILE006", Status: http.StatusBadRequest,
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004", Status: http.StatusServiceUnavailable,
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005", Status: http.StatusServiceUnavailable,
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007", Status: http.StatusServiceUnavailable,
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001", Status: http.StatusTooManyRequests,
	}},
}

var configMessage = UserMessage{
	Message: "A configured processor could not be created",
	Action:  "Check the processor options in the import configuration",
	Code:    "CFG005", Status: http.StatusBadRequest,
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
	Status:  http.StatusInternalServerError,
}

// MapError converts a technical error into a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return defaultMessage
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}
	if core.IsConfigError(err) {
		return configMessage
	}

	lower := strings.ToLower(err.Error())
	for _, p := range patternMessages {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}
