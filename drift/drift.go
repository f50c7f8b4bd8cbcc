// Package drift fingerprints the structure of rendered pages so the
// scheduler can notice when a monitored site's layout has shifted under the
// configured selectors. A large fingerprint distance between consecutive
// loads, combined with fields extracting to null, is a strong selector-rot
// signal.
package drift

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// shingleWidth is the number of consecutive tag names folded into one
// feature. Three keeps local nesting context without making the fingerprint
// hypersensitive to single-tag edits.
const shingleWidth = 3

// FingerprintDOM computes a 64-bit SimHash of the page's tag structure.
// Text, attributes and comments are ignored, so content churn on a stable
// layout produces an identical fingerprint. An input with no tags yields 0.
func FingerprintDOM(renderedHTML string) uint64 {
	tags := tagSequence(renderedHTML)
	if len(tags) == 0 {
		return 0
	}
	return hashFeatures(features(tags))
}

// Distance returns the Hamming distance between two fingerprints; 0 means
// identical structure, 64 means nothing in common.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// tagSequence tokenizes the HTML and returns open-tag names in document
// order.
func tagSequence(renderedHTML string) []string {
	z := html.NewTokenizer(strings.NewReader(renderedHTML))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// features folds the tag sequence into overlapping shingles. A document with
// fewer tags than the shingle width contributes the bare tags instead.
func features(tags []string) []string {
	if len(tags) < shingleWidth {
		return tags
	}
	out := make([]string, 0, len(tags)-shingleWidth+1)
	for i := 0; i+shingleWidth <= len(tags); i++ {
		out = append(out, strings.Join(tags[i:i+shingleWidth], ">"))
	}
	return out
}

// hashFeatures is the SimHash accumulation: each feature's FNV-64a hash
// votes per bit position, and the sign of each position's tally becomes the
// fingerprint bit.
func hashFeatures(feats []string) uint64 {
	var votes [64]int
	for _, f := range feats {
		h := fnv.New64a()
		h.Write([]byte(f))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				votes[bit]++
			} else {
				votes[bit]--
			}
		}
	}

	var fp uint64
	for bit := 0; bit < 64; bit++ {
		if votes[bit] > 0 {
			fp |= 1 << uint(bit)
		}
	}
	return fp
}
