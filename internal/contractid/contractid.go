// Package contractid validates token and asset identifier syntax.
package contractid

import (
	"regexp"
	"strings"
)

// Identifier grammar:
//   - native-asset sentinel: "." followed by a 3-letter ticker, any case
//   - contract id: 2-letter uppercase network prefix, 38-39 alphanumeric
//     address characters, ".", lowercase kebab-case contract name,
//     optionally "::" and a kebab-case trait name
var (
	nativeRe    = regexp.MustCompile(`^\.[A-Za-z]{3}$`)
	contractRe  = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{38,39}\.[a-z][a-z0-9]*(?:-[a-z0-9]+)*(?:::[a-z][a-z0-9]*(?:-[a-z0-9]+)*)?$`)
	principalRe = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{38,39}$`)
)

// IsValid reports whether id is a syntactically valid contract or native
// asset identifier. It has no side effects and performs no lookups.
func IsValid(id string) bool {
	if id == "" {
		return false
	}
	if nativeRe.MatchString(id) {
		return true
	}
	return contractRe.MatchString(id)
}

// IsValidPrincipal reports whether id is a bare account address, the form
// user ids take in subscription requests.
func IsValidPrincipal(id string) bool {
	return principalRe.MatchString(id)
}

// IsNative reports whether id is the native-asset sentinel form.
func IsNative(id string) bool {
	return nativeRe.MatchString(id)
}

// StripTrait removes a "::trait" suffix, if present, returning the bare
// contract id. Callers that hold fully-qualified asset identifiers use this
// to fall back to the defining contract.
func StripTrait(id string) string {
	if i := strings.Index(id, "::"); i >= 0 {
		return id[:i]
	}
	return id
}

// HasTrait reports whether id carries a "::trait" suffix.
func HasTrait(id string) bool {
	return strings.Contains(id, "::")
}
