// Package truth loads family-scoped truth records and offers exact, alias
// and semantic (embedding) lookup with graceful fallback. Readers observe a
// stable copy-on-reload snapshot; reload never blocks lookups.
package truth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tbcv/internal/embedding"
	"tbcv/internal/logging"
	"tbcv/internal/types"
)

// AliasThreshold is the trigram similarity floor for fuzzy alias matches.
const AliasThreshold = 0.85

// snapshot is one immutable generation of the index.
type snapshot struct {
	byFamily    map[types.Family][]*types.TruthRecord
	byCanonical map[string]*types.TruthRecord // lowercased canonical name
	byAlias     map[string][]*types.TruthRecord
}

// SemanticResult is one semantic lookup hit.
type SemanticResult struct {
	Record     *types.TruthRecord `json:"record"`
	Similarity float64            `json:"similarity"`
	Fallback   bool               `json:"fallback"` // true when alias search substituted for embeddings
}

// Index is the truth lookup service.
type Index struct {
	mu       sync.RWMutex
	snap     *snapshot
	engine   embedding.Engine // may be nil
	cosineTh float64

	embedMu   sync.Mutex
	embedOnce map[string]bool // canonical names already embedded
}

// NewIndex creates an empty index. engine may be nil; semantic lookups then
// always fall back to alias search.
func NewIndex(engine embedding.Engine, cosineThreshold float64) *Index {
	if cosineThreshold <= 0 {
		cosineThreshold = 0.7
	}
	return &Index{
		snap:      emptySnapshot(),
		engine:    engine,
		cosineTh:  cosineThreshold,
		embedOnce: make(map[string]bool),
	}
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byFamily:    make(map[types.Family][]*types.TruthRecord),
		byCanonical: make(map[string]*types.TruthRecord),
		byAlias:     make(map[string][]*types.TruthRecord),
	}
}

// Replace swaps in a new generation built from records. Existing readers
// keep the old snapshot until their lookup returns.
func (ix *Index) Replace(records []*types.TruthRecord) {
	snap := emptySnapshot()
	for _, r := range records {
		snap.byFamily[r.Family] = append(snap.byFamily[r.Family], r)
		snap.byCanonical[strings.ToLower(r.CanonicalName)] = r
		for _, alias := range r.Aliases {
			key := strings.ToLower(alias)
			snap.byAlias[key] = append(snap.byAlias[key], r)
		}
	}
	ix.mu.Lock()
	ix.snap = snap
	ix.mu.Unlock()
	logging.Truth("Truth index replaced: %d records, %d families", len(records), len(snap.byFamily))
}

func (ix *Index) snapshot() *snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap
}

// Lookup returns the record with the given canonical name, or nil.
func (ix *Index) Lookup(canonicalName string) *types.TruthRecord {
	return ix.snapshot().byCanonical[strings.ToLower(canonicalName)]
}

// ByAlias returns records matching the query case-insensitively on canonical
// name or alias, with a trigram fallback above AliasThreshold.
func (ix *Index) ByAlias(query string) []*types.TruthRecord {
	snap := ix.snapshot()
	key := strings.ToLower(strings.TrimSpace(query))

	seen := make(map[string]bool)
	var out []*types.TruthRecord
	add := func(r *types.TruthRecord) {
		if r != nil && !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r)
		}
	}

	add(snap.byCanonical[key])
	for _, r := range snap.byAlias[key] {
		add(r)
	}
	if len(out) > 0 {
		return out
	}

	// Fuzzy fallback over all names.
	type scored struct {
		r   *types.TruthRecord
		sim float64
	}
	var hits []scored
	for name, r := range snap.byCanonical {
		if sim := TrigramJaccard(key, name); sim >= AliasThreshold {
			hits = append(hits, scored{r, sim})
		}
	}
	for alias, rs := range snap.byAlias {
		if sim := TrigramJaccard(key, alias); sim >= AliasThreshold {
			for _, r := range rs {
				hits = append(hits, scored{r, sim})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	for _, h := range hits {
		add(h.r)
	}
	return out
}

// Semantic returns up to k records from the family whose embeddings are
// within the cosine threshold of the query. When the embedding provider is
// unavailable it falls back to alias search and marks results fallback=true.
func (ix *Index) Semantic(ctx context.Context, query string, family types.Family, k int) []SemanticResult {
	if k <= 0 {
		k = 5
	}
	if ix.engine == nil {
		return ix.aliasFallback(query, k)
	}
	if hc, ok := ix.engine.(embedding.HealthChecker); ok {
		probe, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := hc.HealthCheck(probe)
		cancel()
		if err != nil {
			logging.TruthDebug("Embedding provider unavailable, alias fallback: %v", err)
			return ix.aliasFallback(query, k)
		}
	}

	queryVec, err := ix.engine.Embed(ctx, query)
	if err != nil {
		logging.TruthDebug("Query embedding failed, alias fallback: %v", err)
		return ix.aliasFallback(query, k)
	}

	ix.ensureEmbeddings(ctx, family)

	snap := ix.snapshot()
	var results []SemanticResult
	for _, r := range snap.byFamily[family] {
		if len(r.Embedding) == 0 {
			continue
		}
		if sim := embedding.Cosine(queryVec, r.Embedding); sim >= ix.cosineTh {
			results = append(results, SemanticResult{Record: r, Similarity: sim})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (ix *Index) aliasFallback(query string, k int) []SemanticResult {
	records := ix.ByAlias(query)
	if len(records) > k {
		records = records[:k]
	}
	out := make([]SemanticResult, 0, len(records))
	for _, r := range records {
		out = append(out, SemanticResult{Record: r, Fallback: true})
	}
	return out
}

// ensureEmbeddings lazily embeds record descriptions for a family.
func (ix *Index) ensureEmbeddings(ctx context.Context, family types.Family) {
	ix.embedMu.Lock()
	defer ix.embedMu.Unlock()
	if ix.embedOnce[string(family)] {
		return
	}

	snap := ix.snapshot()
	var texts []string
	var pending []*types.TruthRecord
	for _, r := range snap.byFamily[family] {
		if len(r.Embedding) > 0 {
			continue
		}
		text := r.CanonicalName
		if r.Description != "" {
			text += ": " + r.Description
		}
		texts = append(texts, text)
		pending = append(pending, r)
	}
	if len(pending) == 0 {
		ix.embedOnce[string(family)] = true
		return
	}

	vecs, err := ix.engine.EmbedBatch(ctx, texts)
	if err != nil {
		logging.TruthDebug("Batch embedding for family %s failed: %v", family, err)
		return
	}
	for i, r := range pending {
		r.Embedding = vecs[i]
	}
	ix.embedOnce[string(family)] = true
	logging.Truth("Embedded %d truth records for family %s", len(pending), family)
}

// ValidCombination reports whether the given canonical names form a declared
// valid combination of any record.
func (ix *Index) ValidCombination(names []string) bool {
	if len(names) == 0 {
		return false
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	snap := ix.snapshot()
	for _, rs := range snap.byFamily {
		for _, r := range rs {
			for _, combo := range r.Combinations {
				if len(combo) != len(names) {
					continue
				}
				match := true
				for _, member := range combo {
					if !want[strings.ToLower(member)] {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

// Family returns all records for a family.
func (ix *Index) Family(family types.Family) []*types.TruthRecord {
	return ix.snapshot().byFamily[family]
}

// Clear removes all records for a family.
func (ix *Index) Clear(family types.Family) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	old := ix.snap
	snap := emptySnapshot()
	for fam, rs := range old.byFamily {
		if fam == family {
			continue
		}
		for _, r := range rs {
			snap.byFamily[fam] = append(snap.byFamily[fam], r)
			snap.byCanonical[strings.ToLower(r.CanonicalName)] = r
			for _, alias := range r.Aliases {
				key := strings.ToLower(alias)
				snap.byAlias[key] = append(snap.byAlias[key], r)
			}
		}
	}
	ix.snap = snap

	ix.embedMu.Lock()
	delete(ix.embedOnce, string(family))
	ix.embedMu.Unlock()
}

// Stats returns record counts per family.
func (ix *Index) Stats() map[string]int {
	snap := ix.snapshot()
	out := make(map[string]int, len(snap.byFamily))
	for fam, rs := range snap.byFamily {
		out[string(fam)] = len(rs)
	}
	return out
}
