package whitelist_test

import (
	"fmt"
	"testing"

	"github.com/haukened/tivilsta/internal/whitelist/common/log"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist/bloom"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist/lru"
)

// helper: n literals plus a few suffix and regex rules
func benchRules(n int) []string {
	out := make([]string, 0, n+4)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("p%05d.example.org", i))
	}
	return append(out, "ALL .example.net", "ALL .cdn.example.com", "REG ^ads\\d+\\.", `REG ^(?!.*\.?(irs|ssa)).*\.gov$`)
}

func benchRuler(b *testing.B, withCache, withBloom bool) *whitelist.Ruler {
	b.Helper()
	opts := []whitelist.Option{whitelist.WithLogger(log.NewNoopLogger())}
	if withCache {
		c, err := lru.New(4096)
		if err != nil {
			b.Fatalf("lru.New: %v", err)
		}
		opts = append(opts, whitelist.WithDecisionCache(c))
	}
	if withBloom {
		opts = append(opts, whitelist.WithBloom(bloom.NewFactory(), 0.001))
	}
	r := whitelist.NewRuler(true, opts...)
	r.ParseVec(benchRules(10000))
	return r
}

func BenchmarkIsWhitelisted(b *testing.B) {
	subjects := []string{
		"p04242.example.org",
		"www.p00001.example.org",
		"img.cdn.example.com",
		"ads12.tracker.io",
		"unrelated.example.de",
	}
	variants := []struct {
		name             string
		withCache, bloom bool
	}{
		{"plain", false, false},
		{"bloom", false, true},
		{"cache+bloom", true, true},
	}
	for _, v := range variants {
		b.Run(v.name, func(b *testing.B) {
			r := benchRuler(b, v.withCache, v.bloom)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = r.IsWhitelisted(subjects[i%len(subjects)])
			}
		})
	}
}

func BenchmarkParseVec(b *testing.B) {
	rules := benchRules(10000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r := whitelist.NewRuler(false, whitelist.WithLogger(log.NewNoopLogger()), whitelist.WithBloom(bloom.NewFactory(), 0.001))
		r.ParseVec(rules)
	}
}
