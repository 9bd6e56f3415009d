package cache

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/scoobystack/scooby-engine/internal/metrics"
	"github.com/scoobystack/scooby-engine/internal/models"
)

const snapshotKey = "scooby:cache:snapshot"

// lockStripes bounds the number of per-fingerprint mutexes. Mutations of the
// same fingerprint always hit the same stripe and therefore serialize.
const lockStripes = 64

// Entry is one cached analysis with its validation state. Entries are owned
// exclusively by the Store; callers receive copies and mutate only through
// Put and Promote.
type Entry struct {
	Fingerprint     string                `json:"fingerprint"`
	Embedding       []float32             `json:"embedding"`
	Result          models.AnalysisResult `json:"result"`
	Confidence      float64               `json:"confidence"`
	CreatedAt       time.Time             `json:"created_at"`
	LastValidatedAt time.Time             `json:"last_validated_at"`
	ValidationCount int                   `json:"validation_count"`
	TTL             time.Duration         `json:"ttl"`
	Pinned          bool                  `json:"pinned"`
	ExpiresAt       time.Time             `json:"expires_at"`
}

func (e *Entry) expired(now time.Time) bool {
	if e.Pinned {
		return false
	}
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Options configures the store. All numbers are configuration defaults
// surfaced through the config package.
type Options struct {
	Capacity            int
	ConfidenceFloor     float64
	ConfidenceIncrement float64
	ConfidenceDecrement float64
	PinThreshold        int
	TTLExtension        time.Duration
	// TierTTLs supplies the per-tier default TTL applied by Put.
	TierTTLs map[models.Tier]time.Duration
	// TierThresholds supplies the per-tier minimum similarity for
	// approximate lookups.
	TierThresholds map[models.Tier]float64
	SnapshotTTL    time.Duration
}

func (o *Options) normalise() {
	if o.Capacity <= 0 {
		o.Capacity = 4096
	}
	if o.ConfidenceIncrement <= 0 {
		o.ConfidenceIncrement = 0.1
	}
	if o.ConfidenceDecrement <= 0 {
		o.ConfidenceDecrement = 0.15
	}
	if o.ConfidenceFloor <= 0 {
		o.ConfidenceFloor = 0.2
	}
	if o.PinThreshold <= 0 {
		o.PinThreshold = 3
	}
	if o.TTLExtension <= 0 {
		o.TTLExtension = time.Hour
	}
	if o.SnapshotTTL <= 0 {
		o.SnapshotTTL = 24 * time.Hour
	}
}

// Stats is the observability snapshot exposed to admin callers.
type Stats struct {
	EntryCount  int     `json:"entry_count"`
	PinnedCount int     `json:"pinned_count"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   uint64  `json:"evictions"`
}

// PromoteOutcome reports what a feedback application did to an entry.
type PromoteOutcome struct {
	Found      bool
	Pinned     bool
	Evicted    bool
	Confidence float64
}

// Store is the two-level response cache: an exact fingerprint index plus a
// similarity scan over entry embeddings. It is the only mutable shared
// resource in the engine; all mutation goes through its methods.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	stripes [lockStripes]sync.Mutex

	opts     Options
	provider Provider
	logger   *slog.Logger

	statsMu   sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewStore builds a Store. provider may be nil to disable persistence.
func NewStore(opts Options, provider Provider, logger *slog.Logger) *Store {
	opts.normalise()
	if provider == nil {
		provider = NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries:  make(map[string]*Entry),
		opts:     opts,
		provider: provider,
		logger:   logger,
	}
}

func (s *Store) stripe(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return &s.stripes[h.Sum32()%lockStripes]
}

// LookupExact returns a copy of the entry for the exact fingerprint, treating
// expired entries as absent. Removal of expired entries is left to the sweep
// so the read path never takes the write lock.
func (s *Store) LookupExact(fingerprint string) (Entry, bool) {
	now := time.Now()

	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	var out Entry
	if ok && !entry.expired(now) {
		out = copyEntry(entry)
	} else {
		ok = false
	}
	s.mu.RUnlock()

	s.recordLookup("exact", ok)
	return out, ok
}

// similarityEpsilon absorbs float32 rounding so a score exactly at a tier
// threshold still counts as a hit.
const similarityEpsilon = 1e-6

// LookupApproximate scans entry embeddings for the highest cosine similarity
// at or above the tier's configured threshold.
func (s *Store) LookupApproximate(embedding []float32, tier models.Tier) (Entry, float64, bool) {
	threshold, ok := s.opts.TierThresholds[tier]
	if !ok || len(embedding) == 0 {
		s.recordLookup("approximate", false)
		return Entry{}, 0, false
	}

	now := time.Now()
	var (
		best      *Entry
		bestScore float64
	)

	s.mu.RLock()
	for _, entry := range s.entries {
		if entry.expired(now) || len(entry.Embedding) != len(embedding) {
			continue
		}
		score := Cosine(embedding, entry.Embedding)
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}
	var out Entry
	found := best != nil && bestScore >= threshold-similarityEpsilon
	if found {
		out = copyEntry(best)
	}
	s.mu.RUnlock()

	s.recordLookup("approximate", found)
	if !found {
		return Entry{}, 0, false
	}
	return out, bestScore, true
}

// Put inserts or overwrites the entry for its fingerprint, applying the
// tier's default TTL unless the entry is pinned or carries an explicit TTL.
func (s *Store) Put(entry Entry, tier models.Tier) {
	lock := s.stripe(entry.Fingerprint)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.TTL <= 0 {
		entry.TTL = s.opts.TierTTLs[tier]
	}
	if !entry.Pinned && entry.TTL > 0 {
		entry.ExpiresAt = now.Add(entry.TTL)
	}

	stored := entry
	s.mu.Lock()
	s.entries[entry.Fingerprint] = &stored
	s.enforceCapacityLocked()
	total, pinned := s.countsLocked()
	s.mu.Unlock()

	metrics.SetCacheEntries(total, pinned)
}

// Promote applies one validation verdict to the referenced entry. Confirmed
// feedback raises confidence by a bounded increment, extends TTL, and pins
// the entry once the validation count crosses the threshold. Rejected
// feedback lowers confidence and evicts immediately below the floor.
func (s *Store) Promote(fingerprint string, outcome models.FeedbackOutcome) PromoteOutcome {
	lock := s.stripe(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer func() {
		total, pinned := s.countsLocked()
		s.mu.Unlock()
		metrics.SetCacheEntries(total, pinned)
	}()

	entry, ok := s.entries[fingerprint]
	if !ok {
		return PromoteOutcome{}
	}

	now := time.Now()
	switch outcome {
	case models.FeedbackConfirmed:
		entry.Confidence = clamp01(entry.Confidence + s.opts.ConfidenceIncrement)
		entry.ValidationCount++
		entry.LastValidatedAt = now
		if !entry.Pinned && !entry.ExpiresAt.IsZero() {
			entry.ExpiresAt = entry.ExpiresAt.Add(s.opts.TTLExtension)
		}
		if entry.ValidationCount >= s.opts.PinThreshold {
			entry.Pinned = true
		}
	case models.FeedbackRejected:
		entry.Confidence = clamp01(entry.Confidence - s.opts.ConfidenceDecrement)
		entry.LastValidatedAt = now
		if entry.Confidence < s.opts.ConfidenceFloor {
			delete(s.entries, fingerprint)
			s.countEviction()
			return PromoteOutcome{Found: true, Evicted: true, Confidence: entry.Confidence}
		}
	}

	return PromoteOutcome{Found: true, Pinned: entry.Pinned, Confidence: entry.Confidence}
}

// EvictExpired removes entries past TTL, skipping pinned ones. It runs on a
// periodic schedule rather than per request.
func (s *Store) EvictExpired() int {
	now := time.Now()
	removed := 0

	s.mu.Lock()
	for fp, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, fp)
			removed++
		}
	}
	total, pinned := s.countsLocked()
	s.mu.Unlock()

	if removed > 0 {
		s.statsMu.Lock()
		s.evictions += uint64(removed)
		s.statsMu.Unlock()
		s.logger.Debug("expired entries evicted", slog.Int("count", removed))
	}
	metrics.SetCacheEntries(total, pinned)
	return removed
}

// Flush drops every entry, pinned or not, and deletes the snapshot.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	metrics.SetCacheEntries(0, 0)
	if err := s.provider.Del(ctx, snapshotKey); err != nil && err != ErrCacheMiss {
		return err
	}
	return nil
}

// Stats returns the current observability snapshot.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	total, pinned := s.countsLocked()
	s.mu.RUnlock()

	s.statsMu.Lock()
	hits, misses, evictions := s.hits, s.misses, s.evictions
	s.statsMu.Unlock()

	stats := Stats{
		EntryCount:  total,
		PinnedCount: pinned,
		Hits:        hits,
		Misses:      misses,
		Evictions:   evictions,
	}
	if hits+misses > 0 {
		stats.HitRate = float64(hits) / float64(hits+misses)
	}
	return stats
}

// SaveSnapshot persists all live entries through the provider.
func (s *Store) SaveSnapshot(ctx context.Context) error {
	now := time.Now()

	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.expired(now) {
			continue
		}
		entries = append(entries, copyEntry(entry))
	}
	s.mu.RUnlock()

	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.provider.Set(ctx, snapshotKey, payload, s.opts.SnapshotTTL)
}

// LoadSnapshot warm-loads the last persisted snapshot; a missing snapshot is
// not an error.
func (s *Store) LoadSnapshot(ctx context.Context) (int, error) {
	payload, err := s.provider.Get(ctx, snapshotKey)
	if err != nil {
		if err == ErrCacheMiss {
			return 0, nil
		}
		return 0, err
	}

	var entries []Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return 0, err
	}

	now := time.Now()
	loaded := 0
	s.mu.Lock()
	for i := range entries {
		entry := entries[i]
		if entry.expired(now) || entry.Fingerprint == "" {
			continue
		}
		s.entries[entry.Fingerprint] = &entry
		loaded++
	}
	total, pinned := s.countsLocked()
	s.mu.Unlock()

	metrics.SetCacheEntries(total, pinned)
	return loaded, nil
}

// RunSweeper periodically evicts expired entries and persists a snapshot
// until the context is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictExpired()
			snapCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.SaveSnapshot(snapCtx); err != nil {
				s.logger.Warn("cache snapshot failed", slog.Any("error", err))
			}
			cancel()
		}
	}
}

// enforceCapacityLocked evicts least-recently-validated non-pinned entries,
// ties broken by lowest confidence, until the store fits the capacity bound.
// Caller holds s.mu.
func (s *Store) enforceCapacityLocked() {
	for len(s.entries) > s.opts.Capacity {
		var victim *Entry
		for _, entry := range s.entries {
			if entry.Pinned {
				continue
			}
			if victim == nil || lessValidated(entry, victim) {
				victim = entry
			}
		}
		if victim == nil {
			return
		}
		delete(s.entries, victim.Fingerprint)
		s.countEviction()
	}
}

func lessValidated(a, b *Entry) bool {
	av, bv := a.LastValidatedAt, b.LastValidatedAt
	if av.IsZero() {
		av = a.CreatedAt
	}
	if bv.IsZero() {
		bv = b.CreatedAt
	}
	if !av.Equal(bv) {
		return av.Before(bv)
	}
	return a.Confidence < b.Confidence
}

func (s *Store) countsLocked() (total, pinned int) {
	total = len(s.entries)
	for _, entry := range s.entries {
		if entry.Pinned {
			pinned++
		}
	}
	return total, pinned
}

func (s *Store) recordLookup(level string, hit bool) {
	s.statsMu.Lock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
	s.statsMu.Unlock()
	metrics.ObserveCacheLookup(level, hit)
}

func (s *Store) countEviction() {
	s.statsMu.Lock()
	s.evictions++
	s.statsMu.Unlock()
}

func copyEntry(e *Entry) Entry {
	out := *e
	out.Embedding = append([]float32(nil), e.Embedding...)
	out.Result.Recommendations = append([]string(nil), e.Result.Recommendations...)
	out.Result.ReasoningChain = append([]string(nil), e.Result.ReasoningChain...)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
