package engine

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// Categorize classifies an error into the recovery taxonomy. It is a pure
// function of the error: deterministic for the same input and it never
// fails. Classification happens once per error occurrence; the resulting
// category is never mutated afterward.
func Categorize(err error) domain.ErrorCategory {
	if err == nil {
		return domain.ErrorCategory{
			Type:     domain.ErrorTypeUnknown,
			Severity: domain.SeverityLow,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeNetwork,
			Severity:    domain.SeverityHigh,
			Recoverable: true,
		}
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrorCategory{
			Type:     domain.ErrorTypeSystem,
			Severity: domain.SeverityMedium,
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return categorizeGRPC(st.Code())
	}

	return categorizeMessage(err.Error())
}

// categorizeGRPC maps gRPC status codes onto the taxonomy for dependencies
// reached over gRPC transports.
func categorizeGRPC(code codes.Code) domain.ErrorCategory {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeNetwork,
			Severity:    domain.SeverityHigh,
			Recoverable: true,
		}
	case codes.ResourceExhausted:
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeResource,
			Severity:    domain.SeverityHigh,
			Recoverable: true,
		}
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return domain.ErrorCategory{
			Type:     domain.ErrorTypeValidation,
			Severity: domain.SeverityMedium,
		}
	case codes.Internal, codes.DataLoss:
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeSystem,
			Severity:    domain.SeverityCritical,
			Recoverable: true,
		}
	default:
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeUnknown,
			Severity:    domain.SeverityMedium,
			Recoverable: true,
		}
	}
}

var (
	validationPatterns = []string{
		"validation", "invalid", "malformed", "schema", "bad request", "400",
		"missing required", "unprocessable",
	}
	resourcePatterns = []string{
		"rate limit", "too many requests", "429", "quota",
		"resource exhausted", "out of memory", "disk full", "no space",
		"capacity", "throttle",
	}
	networkPatterns = []string{
		"timeout", "timed out", "connection refused", "connection reset",
		"dial tcp", "no such host", "network", "unreachable", "broken pipe",
		"eof", "502", "503", "504",
	}
	systemPatterns = []string{
		"internal server error", "500", "panic", "nil pointer", "database",
		"unavailable", "deadlock", "corrupt",
	}
)

// categorizeMessage applies substring rules in a fixed order so the same
// message always classifies the same way. Validation wins over network so
// "invalid timeout value" is a data problem, not a flaky dependency.
func categorizeMessage(msg string) domain.ErrorCategory {
	lower := strings.ToLower(msg)

	if matchAny(lower, validationPatterns) {
		return domain.ErrorCategory{
			Type:     domain.ErrorTypeValidation,
			Severity: domain.SeverityMedium,
		}
	}
	if matchAny(lower, resourcePatterns) {
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeResource,
			Severity:    domain.SeverityHigh,
			Recoverable: true,
		}
	}
	if matchAny(lower, networkPatterns) {
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeNetwork,
			Severity:    domain.SeverityHigh,
			Recoverable: true,
		}
	}
	if matchAny(lower, systemPatterns) {
		return domain.ErrorCategory{
			Type:        domain.ErrorTypeSystem,
			Severity:    domain.SeverityCritical,
			Recoverable: true,
		}
	}

	return domain.ErrorCategory{
		Type:        domain.ErrorTypeUnknown,
		Severity:    domain.SeverityMedium,
		Recoverable: true,
	}
}

func matchAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
