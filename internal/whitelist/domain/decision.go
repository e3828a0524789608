package domain

// Decision is the outcome of evaluating a subject against the rule set.
// Pure value type, no external dependencies.
type Decision struct {
	Whitelisted bool     // true if any rule matched
	Kind        RuleKind // kind of the rule that matched
	MatchedRule string   // stored text of the matching rule
}

// IsWhitelisted is a convenience accessor.
func (d Decision) IsWhitelisted() bool { return d.Whitelisted }

// EmptyDecision returns a not-whitelisted decision.
func EmptyDecision() Decision { return Decision{} }
