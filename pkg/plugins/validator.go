package plugins

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxScanFileSize bounds how much of a single file the scanner reads
const maxScanFileSize = 1024 * 1024

// scannedExtensions are the plugin source files the scanner inspects
var scannedExtensions = map[string]bool{
	".lua":  true,
	".yaml": true,
	".yml":  true,
	".json": true,
}

type rule struct {
	name           string
	pattern        *regexp.Regexp
	severity       string
	category       string
	description    string
	recommendation string
	cweID          string
	exts           map[string]bool // nil matches every scanned extension
}

var luaOnly = map[string]bool{".lua": true}
var declarativeOnly = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// Validator performs metadata validation and static security scanning of plugin sources
type Validator struct {
	rules  []rule
	logger *logrus.Logger
}

// NewValidator creates a new plugin validator
func NewValidator(logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// Calls that escape the Lua sandbox or run host commands
	dangerousCalls := []rule{
		{
			name:           "os.execute",
			pattern:        regexp.MustCompile(`\bos\.execute\s*\(`),
			severity:       "high",
			recommendation: "Command execution can be dangerous. Use declarative exec commands with fixed argv instead.",
			cweID:          "CWE-78",
		},
		{
			name:           "io.popen",
			pattern:        regexp.MustCompile(`\bio\.popen\s*\(`),
			severity:       "high",
			recommendation: "Command execution can be dangerous. Use declarative exec commands with fixed argv instead.",
			cweID:          "CWE-78",
		},
		{
			name:           "loadstring",
			pattern:        regexp.MustCompile(`\bloadstring\s*\(`),
			severity:       "high",
			recommendation: "Dynamic code evaluation is disabled in the plugin runtime. Remove it.",
			cweID:          "CWE-95",
		},
		{
			name:           "load",
			pattern:        regexp.MustCompile(`(^|[^.\w])load\s*\(`),
			severity:       "high",
			recommendation: "Dynamic code evaluation is disabled in the plugin runtime. Remove it.",
			cweID:          "CWE-95",
		},
		{
			name:           "debug library",
			pattern:        regexp.MustCompile(`\bdebug\.\w+`),
			severity:       "medium",
			recommendation: "The debug library can bypass runtime restrictions.",
		},
		{
			name:           "require",
			pattern:        regexp.MustCompile(`\brequire\s*[\(\"']`),
			severity:       "low",
			recommendation: "Module loading is disabled in the plugin runtime. Keep plugin code in a single module.",
		},
	}
	for i := range dangerousCalls {
		dangerousCalls[i].category = "dangerous-call"
		dangerousCalls[i].description = fmt.Sprintf("Plugin uses potentially dangerous call: %s", dangerousCalls[i].name)
		dangerousCalls[i].exts = luaOnly
	}

	secrets := []rule{
		{name: "API Key", pattern: regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']([a-zA-Z0-9]{20,})["']`)},
		{name: "Password", pattern: regexp.MustCompile(`(?i)(password|passwd|pwd)["']?\s*[:=]\s*["']([^"']{8,})["']`)},
		{name: "Token", pattern: regexp.MustCompile(`(?i)(token|auth[_-]?token)\s*[:=]\s*["']([a-zA-Z0-9]{20,})["']`)},
		{name: "AWS Key", pattern: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{name: "Private Key", pattern: regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`)},
	}
	for i := range secrets {
		secrets[i].severity = "high"
		secrets[i].category = "hardcoded-secret"
		secrets[i].description = fmt.Sprintf("Potential hardcoded %s detected", secrets[i].name)
		secrets[i].recommendation = "Remove hardcoded secrets. Use environment variables or secure configuration."
		secrets[i].cweID = "CWE-798"
	}

	fileOps := []rule{
		{
			name:        "Path Traversal",
			pattern:     regexp.MustCompile(`\.\./`),
			severity:    "medium",
			description: "Potential path traversal vulnerability detected",
		},
		{
			name:        "Dangerous File Write",
			pattern:     regexp.MustCompile(`(?i)io\.open\s*\(\s*["'](/etc/|/usr/|/sys/|C:\\Windows)`),
			severity:    "high",
			description: "Writing to system directories detected",
		},
		{
			name:        "Shell Command",
			pattern:     regexp.MustCompile(`(?i)(sh\s+-c|bash\s+-c|cmd\.exe)`),
			severity:    "high",
			description: "Shell command execution detected - potential command injection",
		},
	}
	for i := range fileOps {
		fileOps[i].category = "suspicious-file-operation"
		fileOps[i].recommendation = "Review file operations for security implications"
	}

	declarative := []rule{
		{
			name:           "exec",
			pattern:        regexp.MustCompile(`(?m)^\s*["']?exec["']?\s*:`),
			severity:       "medium",
			category:       "command-exec",
			description:    "Declarative command runs an external program",
			recommendation: "Confirm the executed program and arguments are trusted.",
			cweID:          "CWE-78",
			exts:           declarativeOnly,
		},
	}

	rules := append(dangerousCalls, secrets...)
	rules = append(rules, fileOps...)
	rules = append(rules, declarative...)

	return &Validator{rules: rules, logger: logger}
}

// ValidateMetadata checks metadata for correctness. Errors make a plugin
// unloadable; warnings are advisory.
func (v *Validator) ValidateMetadata(meta *Metadata) []ValidationError {
	if meta == nil {
		return []ValidationError{{Field: "metadata", Message: "Metadata is required", Severity: "error"}}
	}

	problems := checkIdentity(meta)

	if meta.Author == "" {
		problems = append(problems, ValidationError{
			Field:    "author",
			Message:  "Author should be specified",
			Severity: "warning",
		})
	}

	if meta.Description == "" {
		problems = append(problems, ValidationError{
			Field:    "description",
			Message:  "Description should be specified",
			Severity: "warning",
		})
	}

	for i, name := range meta.Commands {
		if name == "" {
			problems = append(problems, ValidationError{
				Field:    fmt.Sprintf("commands[%d]", i),
				Message:  "Command name must not be empty",
				Severity: "error",
			})
		}
	}

	for dep, rng := range meta.Dependencies {
		if _, err := Satisfies("0.0.0", rng); err != nil {
			problems = append(problems, ValidationError{
				Field:    "dependencies." + dep,
				Message:  fmt.Sprintf("Version range %q is not a semantic range", rng),
				Severity: "warning",
			})
		}
	}

	return problems
}

// ScanForSecurityIssues scans plugin sources for dangerous calls, hardcoded
// secrets and suspicious file operations. Findings are advisory.
func (v *Validator) ScanForSecurityIssues(ctx context.Context, pluginPath string) ([]SecurityIssue, error) {
	startTime := time.Now()
	var issues []SecurityIssue

	v.logger.Debugf("Starting security scan for plugin at %s", pluginPath)

	err := filepath.WalkDir(pluginPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != pluginPath && (d.Name() == "node_modules" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if !scannedExtensions[ext] {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxScanFileSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		relPath, _ := filepath.Rel(pluginPath, path)
		issues = append(issues, v.scanContent(relPath, ext, content)...)
		return nil
	})
	if err != nil {
		return issues, fmt.Errorf("failed to walk plugin directory: %w", err)
	}

	v.logger.Debugf("Security scan completed in %v, found %d issues", time.Since(startTime), len(issues))
	return issues, nil
}

// scanContent reports the first match of each rule in content
func (v *Validator) scanContent(relPath, ext string, content []byte) []SecurityIssue {
	var issues []SecurityIssue
	for _, r := range v.rules {
		if r.exts != nil && !r.exts[ext] {
			continue
		}
		loc := r.pattern.FindIndex(content)
		if loc == nil {
			continue
		}
		issues = append(issues, SecurityIssue{
			Severity:       r.severity,
			Category:       r.category,
			Description:    r.description,
			File:           relPath,
			Line:           lineOf(content, loc[0]),
			Recommendation: r.recommendation,
			CWEID:          r.cweID,
		})
	}
	return issues
}

func lineOf(content []byte, offset int) int {
	return bytes.Count(content[:offset], []byte("\n")) + 1
}

// HasBlockingIssues reports whether any issue is critical
func HasBlockingIssues(issues []SecurityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}
