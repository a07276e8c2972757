package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Verification outcomes
const (
	StatusApproved       = "approved"
	StatusRejected       = "rejected"
	StatusReviewRequired = "review_required"
)

// Verifier decides whether a plugin directory is acceptable for installation
type Verifier struct {
	validator *Validator
	logger    *logrus.Logger
}

// NewVerifier creates a new plugin verifier
func NewVerifier(validator *Validator, logger *logrus.Logger) *Verifier {
	if logger == nil {
		logger = logrus.New()
	}
	if validator == nil {
		validator = NewValidator(logger)
	}
	return &Verifier{validator: validator, logger: logger}
}

// VerificationResult contains the complete verification outcome
type VerificationResult struct {
	Plugin         string
	Version        string
	Path           string
	Status         string // approved, rejected, review_required
	MetadataErrors []ValidationError
	SecurityIssues []SecurityIssue
	Reason         string
	StartedAt      time.Time
	CompletedAt    time.Time
	ProcessingTime time.Duration
}

// Approved reports whether the plugin passed verification
func (r *VerificationResult) Approved() bool {
	return r.Status == StatusApproved
}

// Verify validates metadata and scans the sources of the plugin at dir
func (v *Verifier) Verify(ctx context.Context, dir string) *VerificationResult {
	result := &VerificationResult{Path: dir, StartedAt: time.Now()}
	defer func() {
		result.CompletedAt = time.Now()
		result.ProcessingTime = result.CompletedAt.Sub(result.StartedAt)
	}()

	meta, _, err := ReadMetadata(dir)
	if err != nil {
		result.Status = StatusRejected
		result.Reason = fmt.Sprintf("Invalid metadata: %v", err)
		return result
	}
	result.Plugin = meta.Name
	result.Version = meta.Version
	result.MetadataErrors = v.validator.ValidateMetadata(meta)

	issues, err := v.validator.ScanForSecurityIssues(ctx, dir)
	if err != nil {
		v.logger.Warnf("Security scan failed: %v", err)
	}
	result.SecurityIssues = issues

	criticalIssues := 0
	highIssues := 0
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			criticalIssues++
		case "high":
			highIssues++
		}
	}

	metadataErrors := 0
	for _, e := range result.MetadataErrors {
		if e.Severity == "error" {
			metadataErrors++
		}
	}

	switch {
	case metadataErrors > 0:
		result.Status = StatusRejected
		result.Reason = fmt.Sprintf("Found %d metadata errors", metadataErrors)
	case criticalIssues > 0:
		result.Status = StatusRejected
		result.Reason = fmt.Sprintf("Found %d critical security issues", criticalIssues)
	case highIssues > 3 || len(issues) > 10:
		result.Status = StatusReviewRequired
		result.Reason = fmt.Sprintf("Found %d high-severity and %d total security issues requiring manual review", highIssues, len(issues))
	default:
		result.Status = StatusApproved
	}

	v.logger.WithField("plugin", meta.Name).Infof("Verification completed with status: %s", result.Status)
	return result
}
