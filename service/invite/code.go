package invite

import (
	"strings"

	"github.com/tapglue/nexus/platform/generate"
)

// Code format shared by all invites. The token part is short enough to be
// human-typeable, the store guards against the non-zero collision chance with
// a uniqueness constrained insert and a fresh candidate on retry.
const (
	CodePrefix      = "NEXUS-"
	codeTokenLength = 6
)

// GenerateCode returns a fresh candidate code.
func GenerateCode() string {
	return CodePrefix + generate.RandomStringFrom(
		generate.CharsetCode,
		codeTokenLength,
	)
}

// NormalizeCode maps user entered codes onto the canonical case-insensitive
// form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
