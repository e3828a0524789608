package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/haukened/tivilsta/internal/whitelist/common/utils"
)

// RuleKind selects the matching semantics of a Rule.
//
// literal   - subject equals the rule text
// suffix    - subject ends with the rule text at a dot boundary, or equals it without the dot
// regex     - compiled pattern finds a match in the subject
// generated - token expanded into one literal per known TLD; never stored as such
type RuleKind uint8

const (
	RuleLiteral RuleKind = iota
	RuleSuffix
	RuleRegex
	RuleGenerated
)

// Line flags. They are case-sensitive and require exactly one trailing space.
const (
	FlagAll = "ALL "
	FlagReg = "REG "
	FlagRZD = "RZD "
)

// ErrInvalidPattern is returned by ClassifyRule when a REG payload does not compile.
var ErrInvalidPattern = errors.New("invalid regex pattern")

// String returns a stable string representation of the rule kind.
func (k RuleKind) String() string {
	switch k {
	case RuleLiteral:
		return "literal"
	case RuleSuffix:
		return "suffix"
	case RuleRegex:
		return "regex"
	case RuleGenerated:
		return "generated"
	default:
		return fmt.Sprintf("RuleKind(%d)", k)
	}
}

// Rule is a single whitelisting directive parsed from one input line.
// Value holds the literal text, the leading-dot suffix, the raw pattern, or
// the generation token depending on Kind. Pattern is non-nil iff Kind is RuleRegex.
type Rule struct {
	Kind    RuleKind
	Value   string
	Pattern *regexp2.Regexp
}

// Prefix returns the flag that produces this rule kind, or "" for literals.
func (k RuleKind) Prefix() string {
	switch k {
	case RuleSuffix:
		return FlagAll
	case RuleRegex:
		return FlagReg
	case RuleGenerated:
		return FlagRZD
	default:
		return ""
	}
}

// String renders the rule back into its line form.
func (r Rule) String() string {
	return r.Kind.Prefix() + r.Value
}

// ClassifyRule turns one raw line into a typed Rule.
// ok is false for blank lines and '#' comments. A REG payload that fails to
// compile yields an error wrapping ErrInvalidPattern; callers skip it and
// carry on with the batch.
func ClassifyRule(raw string) (rule Rule, ok bool, err error) {
	line := strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
	if line == "" || utils.IsComment(line) {
		return Rule{}, false, nil
	}

	switch {
	case strings.HasPrefix(line, FlagAll):
		r := NewSuffixRule(line[len(FlagAll):])
		if r.Bare() == "" {
			// "ALL ." would whitelist everything.
			return Rule{}, false, nil
		}
		return r, true, nil
	case strings.HasPrefix(line, FlagReg):
		r, err := NewRegexRule(line[len(FlagReg):])
		if err != nil {
			return Rule{}, false, err
		}
		return r, true, nil
	case strings.HasPrefix(line, FlagRZD):
		return NewGeneratedRule(line[len(FlagRZD):]), true, nil
	default:
		return NewLiteralRule(line), true, nil
	}
}

// NewLiteralRule constructs an exact-match rule.
func NewLiteralRule(text string) Rule {
	return Rule{Kind: RuleLiteral, Value: utils.CanonicalName(text)}
}

// NewSuffixRule constructs a suffix rule. A payload without a leading dot is
// treated as if it had one, so "com" and ".com" are the same rule.
func NewSuffixRule(text string) Rule {
	v := utils.CanonicalName(text)
	if !strings.HasPrefix(v, ".") {
		v = "." + v
	}
	return Rule{Kind: RuleSuffix, Value: v}
}

// NewRegexRule compiles pattern with lookaround support. Matching is
// case-insensitive because subjects are folded before evaluation.
func NewRegexRule(pattern string) (Rule, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return Rule{}, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return Rule{Kind: RuleRegex, Value: pattern, Pattern: re}, nil
}

// NewGeneratedRule constructs an RZD token rule.
func NewGeneratedRule(token string) Rule {
	return Rule{Kind: RuleGenerated, Value: utils.CanonicalName(token)}
}

// Expand materializes a generated rule into one literal per TLD, in the
// set's sorted order. Expanding against an empty set yields nothing.
func (r Rule) Expand(tlds TLDSet) []Rule {
	if r.Kind != RuleGenerated || r.Value == "" || tlds.Len() == 0 {
		return nil
	}
	out := make([]Rule, 0, tlds.Len())
	for _, tld := range tlds.Sorted() {
		out = append(out, Rule{Kind: RuleLiteral, Value: r.Value + "." + tld})
	}
	return out
}

// Bare returns the suffix without its leading dot ("gov.uk" for ".gov.uk").
func (r Rule) Bare() string {
	return strings.TrimPrefix(r.Value, ".")
}
