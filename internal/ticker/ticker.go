// Package ticker canonicalizes equity ticker symbols. The canonical form
// always carries an exchange suffix and is the only key used for lots and
// alerts.
package ticker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atmx/stocker/internal/model"
)

// DefaultSuffix is appended to symbols that carry no recognized exchange.
const DefaultSuffix = ".T"

// Recognized Yahoo exchange suffixes for Japanese listings.
var knownSuffixes = map[string]bool{
	".T": true, // Tokyo
	".N": true, // Nagoya
	".S": true, // Sapporo
	".F": true, // Fukuoka
}

// symbolRegex matches a bare symbol such as 7203, 130A or SONY.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-]{0,11}$`)

// IsKnownSuffix reports whether s (with its leading dot) is a recognized
// exchange suffix.
func IsKnownSuffix(s string) bool {
	return knownSuffixes[strings.ToUpper(s)]
}

// Normalizer appends a configured default suffix.
type Normalizer struct {
	suffix string
}

// NewNormalizer returns a normalizer for the given default suffix. An empty
// or unrecognized suffix falls back to DefaultSuffix.
func NewNormalizer(suffix string) *Normalizer {
	suffix = strings.ToUpper(strings.TrimSpace(suffix))
	if !knownSuffixes[suffix] {
		suffix = DefaultSuffix
	}
	return &Normalizer{suffix: suffix}
}

// Suffix returns the default suffix in use.
func (n *Normalizer) Suffix() string { return n.suffix }

// Normalize returns the canonical ticker. It is idempotent.
func (n *Normalizer) Normalize(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" {
		return "", model.NewValidationError("ticker is required")
	}

	base := sym
	suffix := n.suffix
	if i := strings.LastIndexByte(sym, '.'); i > 0 && knownSuffixes[sym[i:]] {
		base, suffix = sym[:i], sym[i:]
	}

	if !symbolRegex.MatchString(base) {
		return "", model.NewValidationError(fmt.Sprintf("invalid ticker %q", raw))
	}
	return base + suffix, nil
}

var std = NewNormalizer(DefaultSuffix)

// Normalize canonicalizes raw with the default ".T" suffix.
func Normalize(raw string) (string, error) {
	return std.Normalize(raw)
}
