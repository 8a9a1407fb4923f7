// Package redact masks credentials that can appear in uninstall command
// lines, handler output and advisor transcripts before they are written
// to disk.
package redact

import (
	"regexp"
)

const Placeholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// msiexec / installer properties: PASSWORD=..., ADMINPASSWORD="..."
	regexp.MustCompile(`(?i)\b([A-Z_]*(?:PASSWORD|PASSWD|PWD|SECRET|TOKEN|LICENSEKEY|PRODUCTKEY|SERIAL))\s*=\s*("[^"]*"|'[^']*'|[^\s"']+)`),
	// switch-style credentials: /password:x, -pwd x, --token=x, /key:x
	regexp.MustCompile(`(?i)(^|\s)([/-]{1,2}(?:password|passwd|pwd|pass|p|key|token|secret|serial))([:=]|\s+)("[^"]*"|[^\s"]+)`),

	// OpenAI-style API keys
	regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{20,}=*`),

	// Basic auth in URLs
	regexp.MustCompile(`(?i)(https?|ftp)://[^\s:/@]+:[^\s@]+@`),

	// Generic API keys
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),
}

// Redact replaces every recognised secret in input with Placeholder.
// Property and switch names are preserved so the command stays readable.
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := sensitivePatterns[0].ReplaceAllString(input, "${1}="+Placeholder)
	result = sensitivePatterns[1].ReplaceAllString(result, "${1}${2}${3}"+Placeholder)
	for _, pattern := range sensitivePatterns[2:] {
		result = pattern.ReplaceAllString(result, Placeholder)
	}
	return result
}

// RedactArgs applies Redact to each argument. A switch whose value is the
// following argument ("/password", "s3cret") has that argument masked.
func RedactArgs(args []string) []string {
	result := make([]string, len(args))
	maskNext := false
	for i, arg := range args {
		if maskNext {
			result[i] = Placeholder
			maskNext = false
			continue
		}
		result[i] = Redact(arg)
		maskNext = bareSwitch.MatchString(arg)
	}
	return result
}

var bareSwitch = regexp.MustCompile(`(?i)^[/-]{1,2}(?:password|passwd|pwd|pass|token|secret)$`)
