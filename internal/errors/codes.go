// Package errors provides structured error handling for smartfolder.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Path and file I/O errors
//   - 3XX: Collaborator (extraction, embedding, face detection) errors
//   - 4XX: Request validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryPath indicates path and file I/O errors.
	CategoryPath Category = "PATH"
	// CategoryCollaborator indicates failures of external collaborators.
	CategoryCollaborator Category = "COLLABORATOR"
	// CategoryQuery indicates request validation errors.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Path errors (200-299)
	ErrCodePathNotFound   = "ERR_201_PATH_NOT_FOUND"
	ErrCodePathUnreadable = "ERR_202_PATH_UNREADABLE"
	ErrCodeFileTooLarge   = "ERR_203_FILE_TOO_LARGE"

	// Collaborator errors (300-399)
	ErrCodeExtractionFailed    = "ERR_301_EXTRACTION_FAILED"
	ErrCodeEmbeddingFailed     = "ERR_302_EMBEDDING_FAILED"
	ErrCodeFaceDetectionFailed = "ERR_303_FACE_DETECTION_FAILED"
	ErrCodeCollaboratorTimeout = "ERR_304_COLLABORATOR_TIMEOUT"

	// Query errors (400-499)
	ErrCodeQueryEmpty        = "ERR_401_QUERY_EMPTY"
	ErrCodeUnknownSearchMode = "ERR_402_UNKNOWN_SEARCH_MODE"
	ErrCodeUnknownCluster    = "ERR_403_UNKNOWN_CLUSTER"
	ErrCodeConcurrentScan    = "ERR_404_CONCURRENT_SCAN"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeStoreFailed  = "ERR_502_STORE_FAILED"
	ErrCodeIndexFailed  = "ERR_503_INDEX_FAILED"
	ErrCodeSearchFailed = "ERR_504_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryPath
	case '3':
		return CategoryCollaborator
	case '4':
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Collaborator failures degrade indexing rather than aborting it,
// so they are warnings; everything else is a plain error.
func severityFromCode(code string) Severity {
	if categoryFromCode(code) == CategoryCollaborator {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether errors with this code may succeed on retry.
// Only collaborator calls are retried; caller misuse never is.
func isRetryableCode(code string) bool {
	return categoryFromCode(code) == CategoryCollaborator
}
