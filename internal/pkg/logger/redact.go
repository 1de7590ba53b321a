package logger

import "strings"

// RedactEmail keeps the domain and the first two characters of the local
// part. Anything that is not a single address collapses to "***@***", so a
// recipient list logged under one key never leaks.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
