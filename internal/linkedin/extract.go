package linkedin

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	publicProfileRe = regexp.MustCompile(`linkedin\.com/in/([^/?]+)`)
	salesNavRe      = regexp.MustCompile(`linkedin\.com/sales/people/([^/?,]+)`)
)

// ExtractProviderID pulls the provider handle out of a profile URL.
// Supports public profile URLs (/in/<handle>) and Sales Navigator URLs
// (/sales/people/<id>).
func ExtractProviderID(profileURL string) (string, error) {
	u := strings.TrimSpace(profileURL)
	if u == "" {
		return "", fmt.Errorf("could not extract provider id from %q", profileURL)
	}
	if m := publicProfileRe.FindStringSubmatch(u); len(m) == 2 {
		return m[1], nil
	}
	if m := salesNavRe.FindStringSubmatch(u); len(m) == 2 {
		return m[1], nil
	}
	return "", fmt.Errorf("could not extract provider id from %q", profileURL)
}
