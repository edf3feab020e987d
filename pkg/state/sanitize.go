package state

import (
	"sort"
	"strings"
)

// sensitiveKeyPatterns contains patterns that indicate a key holds sensitive data.
var sensitiveKeyPatterns = []string{
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"KEY",
	"CREDENTIAL",
	"AUTH",
	"PRIVATE",
	"PASSPHRASE",
}

const redactedValue = "[REDACTED]"

// SanitizeEnv returns a copy of env with sensitive values redacted. Empty
// values stay empty so operators can still see that a secret is unset.
func SanitizeEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	result := make(map[string]string, len(env))
	for k, v := range env {
		if v != "" && isSensitiveKey(k) {
			result[k] = redactedValue
		} else {
			result[k] = v
		}
	}
	return result
}

// SanitizedPairs renders env as sorted KEY=VALUE pairs with secrets redacted.
func SanitizedPairs(env map[string]string) []string {
	clean := SanitizeEnv(env)
	out := make([]string, 0, len(clean))
	for k, v := range clean {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
