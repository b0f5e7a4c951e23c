package providers

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/wakaranaidev/koware/pkg/types"
)

// Host priority is a static classification used to break ties between
// otherwise-equal streams: large CDNs are preferred, known-flaky file hosts
// are penalized, everything else scores 0.
var (
	reliableHosts = []string{"wixmp.com", "akamaized.net", "cloudfront.net", "anicdn"}
	flakyHosts    = []string{"dropbox.com", "wetransfer.com", "gofile.io", "streamlare"}
)

// HostScore classifies the host of a stream URL.
func HostScore(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	host := strings.ToLower(u.Host)
	for _, h := range reliableHosts {
		if strings.Contains(host, h) {
			return 2
		}
	}
	for _, h := range flakyHosts {
		if strings.Contains(host, h) {
			return -2
		}
	}
	return 0
}

// QualityScore turns a free-form quality label into a sortable number.
// "1080p" scores 1080, "auto" scores 0 and anything unparsable scores -1 so
// it sorts last.
func QualityScore(quality string) int {
	if strings.EqualFold(strings.TrimSpace(quality), "auto") {
		return 0
	}
	digits := strings.Builder{}
	for _, r := range quality {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return -1
	}
	score := 0
	for _, r := range digits.String() {
		score = score*10 + int(r-'0')
	}
	return score
}

// RankStreams deduplicates links by URL (keeping per URL the entry with the
// highest host score, then the highest quality score) and orders the result
// best-first: descending quality score, then descending host score.
// Ranking an already-ranked, already-deduplicated list is a no-op.
func RankStreams(links []types.StreamLink) []types.StreamLink {
	if len(links) == 0 {
		return links
	}

	groups := lo.GroupBy(links, func(l types.StreamLink) string { return l.URL })

	// Preserve first-seen order of URLs so equal-score entries keep a
	// deterministic order across repeated ranking.
	seen := make(map[string]bool, len(groups))
	ranked := make([]types.StreamLink, 0, len(groups))
	for _, l := range links {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		ranked = append(ranked, bestOfGroup(groups[l.URL]))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		qi, qj := QualityScore(ranked[i].Quality), QualityScore(ranked[j].Quality)
		if qi != qj {
			return qi > qj
		}
		return ranked[i].HostScore > ranked[j].HostScore
	})

	return ranked
}

func bestOfGroup(group []types.StreamLink) types.StreamLink {
	return lo.MaxBy(group, func(a, b types.StreamLink) bool {
		if a.HostScore != b.HostScore {
			return a.HostScore > b.HostScore
		}
		return QualityScore(a.Quality) > QualityScore(b.Quality)
	})
}
