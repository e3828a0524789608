package whitelist

// RulerStats is a snapshot of the rule store and the decision cache.
type RulerStats struct {
	Literals  int    // distinct literal rules, generated ones included
	Suffixes  int    // distinct suffix rules
	Regexes   int    // compiled patterns, in evaluation order
	Generated uint64 // new literals stored by RZD expansion
	Dropped   uint64 // REG lines that failed to compile
	TLDs      int    // size of the resolved TLD set, 0 until first RZD line
	CacheSize int    // decisions currently memoized
	Hits      uint64 // decision cache hits since construction
	Misses    uint64 // decision cache misses since construction
}
