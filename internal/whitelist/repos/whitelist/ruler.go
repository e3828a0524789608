package whitelist

import (
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/haukened/tivilsta/internal/whitelist/common/log"
	"github.com/haukened/tivilsta/internal/whitelist/common/utils"
	"github.com/haukened/tivilsta/internal/whitelist/domain"
)

const (
	defaultBloomCapacity = 1024
	defaultRegexTimeout  = time.Second
)

// Ruler aggregates every rule collection under one configuration and answers
// whitelist queries. It applies a cache → bloom → literal → suffix → regex
// pipeline on reads. ParseVec is the only rule mutator and is serialized
// against queries; queries may run concurrently with each other.
type Ruler struct {
	mu               sync.RWMutex
	allowComplements bool

	literals map[string]struct{}
	suffixes *suffixIndex
	regexes  []domain.Rule

	tldSource TLDSource
	tldOnce   sync.Once
	tlds      domain.TLDSet

	cache        DecisionCache
	bloomFactory BloomFactory
	bloom        BloomFilter
	bloomCap     uint64
	bloomKeys    uint64
	fpRate       float64

	regexTimeout time.Duration
	logger       log.Logger

	generated uint64
	dropped   uint64
}

// Option configures optional collaborators of a Ruler.
type Option func(*Ruler)

// WithTLDSource sets where RZD expansion gets its TLD set. The source is
// consulted at most once, on the first RZD rule. Without it, RZD rules
// expand to nothing.
func WithTLDSource(src TLDSource) Option {
	return func(r *Ruler) { r.tldSource = src }
}

// WithDecisionCache memoizes decisions. The cache is purged on every insert.
func WithDecisionCache(c DecisionCache) Option {
	return func(r *Ruler) { r.cache = c }
}

// WithBloom enables a Bloom prefilter in front of the literal and suffix
// lookups. fpRate is the target false-positive rate used when (re)sizing.
func WithBloom(f BloomFactory, fpRate float64) Option {
	return func(r *Ruler) {
		r.bloomFactory = f
		r.fpRate = fpRate
	}
}

// WithRegexTimeout bounds a single pattern evaluation. Zero disables the bound.
func WithRegexTimeout(d time.Duration) Option {
	return func(r *Ruler) {
		if d <= 0 {
			d = regexp2.DefaultMatchTimeout
		}
		r.regexTimeout = d
	}
}

// WithLogger overrides the global logger.
func WithLogger(l log.Logger) Option {
	return func(r *Ruler) { r.logger = l }
}

// NewRuler constructs an empty rule store. allowComplements makes a literal
// rule also cover its "www." complement and is fixed for the Ruler's lifetime.
func NewRuler(allowComplements bool, opts ...Option) *Ruler {
	r := &Ruler{
		allowComplements: allowComplements,
		literals:         make(map[string]struct{}),
		suffixes:         newSuffixIndex(),
		regexTimeout:     defaultRegexTimeout,
		logger:           log.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewDisabledCache()
	}
	if r.bloomFactory != nil {
		r.bloomCap = defaultBloomCapacity
		r.bloom = r.bloomFactory.New(r.bloomCap, r.fpRate)
	}
	return r
}

// AllowComplements reports the complement setting chosen at construction.
func (r *Ruler) AllowComplements() bool { return r.allowComplements }

// ParseVec classifies and inserts every line. Invalid patterns are logged and
// skipped; the rest of the batch is unaffected.
func (r *Ruler) ParseVec(lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for i, line := range lines {
		rule, ok, err := domain.ClassifyRule(line)
		if err != nil {
			r.dropped++
			r.logger.Warn(map[string]any{"line": i + 1, "rule": strings.TrimSpace(line), "error": err}, "Skipping invalid rule")
			continue
		}
		if !ok {
			r.logger.Debug(map[string]any{"line": i + 1}, "parse_rule_skip_blank_or_comment")
			continue
		}
		inserted += r.insert(rule)
	}

	if inserted > 0 {
		r.cache.Purge()
	}
	r.logger.Debug(map[string]any{"lines": len(lines), "inserted": inserted}, "parse_vec_done")
}

// insert stores one classified rule and returns how many new entries it added.
// Caller holds the write lock.
func (r *Ruler) insert(rule domain.Rule) int {
	switch rule.Kind {
	case domain.RuleLiteral:
		if rule.Value == "" {
			return 0
		}
		if _, ok := r.literals[rule.Value]; ok {
			return 0
		}
		r.literals[rule.Value] = struct{}{}
		r.addBloomKey(rule.Value)
		return 1
	case domain.RuleSuffix:
		if !r.suffixes.insert(rule.Value) {
			return 0
		}
		r.addBloomKey(utils.Reverse(rule.Value))
		return 1
	case domain.RuleRegex:
		for _, existing := range r.regexes {
			if existing.Value == rule.Value {
				return 0
			}
		}
		rule.Pattern.MatchTimeout = r.regexTimeout
		r.regexes = append(r.regexes, rule)
		return 1
	case domain.RuleGenerated:
		return r.expand(rule)
	default:
		r.logger.Warn(map[string]any{"kind": rule.Kind.String()}, "Ignoring rule of unknown kind")
		return 0
	}
}

// expand materializes an RZD token into literals. Caller holds the write lock.
func (r *Ruler) expand(rule domain.Rule) int {
	if r.allowComplements {
		rule.Value = utils.StripWWW(rule.Value)
	}
	tlds := r.resolveTLDs()
	if tlds.Len() == 0 {
		r.logger.Debug(map[string]any{"token": rule.Value}, "expand_skip_empty_tld_set")
		return 0
	}
	added := 0
	for _, lit := range rule.Expand(tlds) {
		added += r.insert(lit)
	}
	r.generated += uint64(added)
	r.logger.Debug(map[string]any{"token": rule.Value, "tlds": tlds.Len(), "added": added}, "expand_done")
	return added
}

func (r *Ruler) resolveTLDs() domain.TLDSet {
	r.tldOnce.Do(func() {
		if r.tldSource == nil {
			r.logger.Warn(nil, "No TLD source configured; RZD rules expand to nothing")
			return
		}
		r.tlds = r.tldSource.TLDs()
	})
	return r.tlds
}

// IsWhitelisted reports whether any rule matches subject.
func (r *Ruler) IsWhitelisted(subject string) bool {
	return r.Decide(subject).Whitelisted
}

// Decide evaluates subject and returns the full decision. Empty subjects and
// '#' comment lines are never whitelisted.
func (r *Ruler) Decide(subject string) domain.Decision {
	cn := utils.CanonicalName(subject)
	if cn == "" || utils.IsComment(cn) {
		return domain.EmptyDecision()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.cache.Get(cn); ok {
		return d
	}
	dec := r.evaluate(cn)
	r.cache.Put(cn, dec)
	return dec
}

// evaluate runs the matchers in increasing cost order. Caller holds the read lock.
func (r *Ruler) evaluate(cn string) domain.Decision {
	if r.checkBloom(cn) {
		if lit, ok := r.matchLiteral(cn); ok {
			return domain.Decision{Whitelisted: true, Kind: domain.RuleLiteral, MatchedRule: lit}
		}
		if suf, ok := r.suffixes.match(cn); ok {
			return domain.Decision{Whitelisted: true, Kind: domain.RuleSuffix, MatchedRule: suf}
		}
	}
	if pat, ok := r.matchRegex(cn); ok {
		return domain.Decision{Whitelisted: true, Kind: domain.RuleRegex, MatchedRule: pat}
	}
	return domain.EmptyDecision()
}

func (r *Ruler) matchLiteral(cn string) (string, bool) {
	if _, ok := r.literals[cn]; ok {
		return cn, true
	}
	if r.allowComplements {
		for _, c := range utils.Complements(cn) {
			if _, ok := r.literals[c]; ok {
				return c, true
			}
		}
	}
	return "", false
}

func (r *Ruler) matchRegex(cn string) (string, bool) {
	for _, rule := range r.regexes {
		ok, err := rule.Pattern.MatchString(cn)
		if err != nil {
			// regexp2 only errors on timeout; treat as no match.
			r.logger.Warn(map[string]any{"pattern": rule.Value, "subject": cn, "error": err}, "Regex evaluation aborted")
			continue
		}
		if ok {
			return rule.Value, true
		}
	}
	return "", false
}

// checkBloom returns true if the literal or suffix stage may match, false if
// it definitely cannot. Without a filter it always returns true.
func (r *Ruler) checkBloom(cn string) bool {
	if r.bloom == nil {
		return true
	}
	if r.bloom.MightContain([]byte(cn)) {
		return true
	}
	if r.allowComplements {
		for _, c := range utils.Complements(cn) {
			if r.bloom.MightContain([]byte(c)) {
				return true
			}
		}
	}
	// reversed suffix anchors at every dot of "."+cn, most-specific first
	a := "." + cn
	for {
		if r.bloom.MightContain([]byte(utils.Reverse(a))) {
			return true
		}
		i := strings.IndexByte(a[1:], '.')
		if i < 0 {
			return false
		}
		a = a[i+1:]
	}
}

// addBloomKey records key and regrows the filter once it passes capacity, so
// the false-positive rate stays near target. Caller holds the write lock.
func (r *Ruler) addBloomKey(key string) {
	if r.bloom == nil {
		return
	}
	r.bloomKeys++
	if r.bloomKeys <= r.bloomCap {
		r.bloom.Add([]byte(key))
		return
	}
	r.bloomCap = r.bloomKeys * 2
	bf := r.bloomFactory.New(r.bloomCap, r.fpRate)
	for lit := range r.literals {
		bf.Add([]byte(lit))
	}
	r.suffixes.walk(func(suffix string) {
		bf.Add([]byte(utils.Reverse(suffix)))
	})
	// key is already in literals or suffixes at this point
	r.bloom = bf
	r.logger.Debug(map[string]any{"capacity": r.bloomCap, "keys": r.bloomKeys}, "bloom_regrow")
}

// Stats returns a snapshot of rule counts and cache metrics.
func (r *Ruler) Stats() RulerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hits, misses, _ := r.cache.Stats()
	return RulerStats{
		Literals:  len(r.literals),
		Suffixes:  r.suffixes.len(),
		Regexes:   len(r.regexes),
		Generated: r.generated,
		Dropped:   r.dropped,
		TLDs:      r.tlds.Len(),
		CacheSize: r.cache.Len(),
		Hits:      hits,
		Misses:    misses,
	}
}

// Patterns returns the stored regex patterns in evaluation order.
func (r *Ruler) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.regexes))
	for i, rule := range r.regexes {
		out[i] = rule.Value
	}
	return out
}

// disabledCache is the no-op DecisionCache used when none is configured.
type disabledCache struct{}

// NewDisabledCache returns a DecisionCache that stores nothing and always misses.
func NewDisabledCache() DecisionCache { return disabledCache{} }

func (disabledCache) Get(string) (domain.Decision, bool) { return domain.Decision{}, false }
func (disabledCache) Put(string, domain.Decision)        {}
func (disabledCache) Len() int                           { return 0 }
func (disabledCache) Purge()                             {}
func (disabledCache) Stats() (uint64, uint64, uint64)    { return 0, 0, 0 }

var _ DecisionCache = disabledCache{}
