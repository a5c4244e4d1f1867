// errors.go - Failure classes reported by the batch engine

package common

import "go.uber.org/zap"

// ErrorClass names how a page or batch failure is handled.
type ErrorClass string

const (
	ClassExtractionGap      ErrorClass = "extraction_gap"      // no text, no recognizer
	ClassDetectionMiss      ErrorClass = "detection_miss"      // no invoice number
	ClassResolutionFailure  ErrorClass = "resolution_failure"  // invoice number, no PO
	ClassDependencyFailure  ErrorClass = "dependency_failure"  // assist call failed
	ClassInvalidSuggestion  ErrorClass = "invalid_suggestion"  // assist PO not eligible
	ClassPersistenceWarning ErrorClass = "persistence_warning" // store write failed
	ClassFatalBatchError    ErrorClass = "fatal_batch_error"
)

// Field returns the zap field used to tag log lines with a class.
func (c ErrorClass) Field() zap.Field {
	return zap.String("class", string(c))
}
