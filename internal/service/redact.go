package service

import "regexp"

// signaturePattern matches signed-request query values (Binance HMAC signatures)
// in URLs embedded in log lines and error messages.
var signaturePattern = regexp.MustCompile(`(?i)(signature=)[^&\s"]+`)

// Redact hides request signatures in s.
func Redact(s string) string {
	return signaturePattern.ReplaceAllString(s, "${1}[REDACTED]")
}
