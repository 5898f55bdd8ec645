package dedup

import (
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// DefaultThreshold is the similarity at or above which two prompts in the
// same hash bucket count as duplicates.
const DefaultThreshold = 0.95

// DedupResult describes one deduplication pass.
type DedupResult struct {
	Threshold  float64         `json:"threshold"`
	TotalItems int             `json:"total_items"`
	Deduped    int             `json:"deduped"`
	Survivors  int             `json:"survivors"`
	Details    []ClusterDetail `json:"details,omitempty"`
}

// ClusterDetail records which inputs were dropped in favour of a survivor.
// Indexes refer to the input slice.
type ClusterDetail struct {
	Survivor   int     `json:"survivor"`
	Deduped    []int   `json:"deduped"`
	Similarity float64 `json:"similarity"`
}

// Dedupe returns prompts with duplicates removed, keeping the first
// occurrence of each equivalence class. Input order is preserved.
func Dedupe(prompts []prompt.ExtractedPrompt, threshold float64) []prompt.ExtractedPrompt {
	kept, _ := DedupeWithResult(prompts, threshold)
	return kept
}

// DedupeWithResult is Dedupe plus a report of what was dropped.
//
// Prompts are bucketed by a 31-multiplier polynomial hash of their
// normalized content (lower-cased, whitespace collapsed). A prompt is
// dropped when any earlier prompt in its bucket, kept or not, has
// similarity >= threshold with it. Comparing against every earlier member
// rather than only the survivors keeps the pass idempotent and makes a
// lower threshold never remove fewer prompts.
func DedupeWithResult(prompts []prompt.ExtractedPrompt, threshold float64) ([]prompt.ExtractedPrompt, DedupResult) {
	res := DedupResult{Threshold: threshold, TotalItems: len(prompts)}
	if len(prompts) == 0 {
		return nil, res
	}

	type member struct {
		index   int
		content string
	}
	buckets := make(map[uint32][]member)
	clusters := make(map[int]int) // survivor index -> position in res.Details

	kept := make([]prompt.ExtractedPrompt, 0, len(prompts))
	for i, p := range prompts {
		h := Hash(p.Content)
		content := collapseSpace(p.Content)

		dupOf, best := -1, 0.0
		for _, m := range buckets[h] {
			if sim := similarityAtLeast(content, m.content, threshold); sim >= threshold {
				dupOf, best = m.index, sim
				break
			}
		}
		buckets[h] = append(buckets[h], member{index: i, content: content})

		if dupOf < 0 {
			kept = append(kept, p)
			continue
		}

		res.Deduped++
		root := dupOf
		if pos, ok := clusters[root]; ok {
			res.Details[pos].Deduped = append(res.Details[pos].Deduped, i)
			if best < res.Details[pos].Similarity {
				res.Details[pos].Similarity = best
			}
			continue
		}
		clusters[root] = len(res.Details)
		res.Details = append(res.Details, ClusterDetail{Survivor: root, Deduped: []int{i}, Similarity: best})
	}
	res.Survivors = len(kept)
	return kept, res
}

// FilterExisting drops prompts that duplicate content already stored for
// the tenant. It returns the remaining prompts and how many were dropped.
func FilterExisting(prompts []prompt.ExtractedPrompt, existing []string, threshold float64) ([]prompt.ExtractedPrompt, int) {
	if len(existing) == 0 || len(prompts) == 0 {
		return prompts, 0
	}
	byHash := make(map[uint32][]string, len(existing))
	for _, e := range existing {
		h := Hash(e)
		byHash[h] = append(byHash[h], collapseSpace(e))
	}

	kept := make([]prompt.ExtractedPrompt, 0, len(prompts))
	dropped := 0
	for _, p := range prompts {
		content := collapseSpace(p.Content)
		dup := false
		for _, e := range byHash[Hash(p.Content)] {
			if similarityAtLeast(content, e, threshold) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped
}

// Hash is a 32-bit polynomial rolling hash (multiplier 31) over the
// normalized form of s.
func Hash(s string) uint32 {
	var h uint32
	for _, r := range Normalize(s) {
		h = h*31 + uint32(r)
	}
	return h
}

// Normalize lower-cases s and collapses runs of whitespace to one space.
func Normalize(s string) string {
	return strings.ToLower(collapseSpace(s))
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
