package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/ashureev/fauxto/internal/dataset"
)

// LeafLister is the slice of the dataset resolver the local source needs.
type LeafLister interface {
	ListLeaf(ctx context.Context, leaf string) (*dataset.Manifest, error)
	Invalidate(leaf string)
}

// LocalPairSource draws stem-matched pairs straight from one dataset leaf,
// consuming each pairable id at most once per run. When its id list runs dry
// it re-resolves the leaf so freshly added files are picked up before
// exhaustion is reported.
type LocalPairSource struct {
	resolver LeafLister
	leaf     string
	baseURL  string

	mu         sync.Mutex
	resolved   bool
	ids        []int64
	consumed   map[int64]bool
	aiFiles    map[int64]string
	humanFiles map[int64]string
	intn       func(n int) int
}

// NewLocalPairSource creates a source over one dataset leaf. Asset urls are
// built under baseURL.
func NewLocalPairSource(resolver LeafLister, leaf, baseURL string) *LocalPairSource {
	return &LocalPairSource{
		resolver: resolver,
		leaf:     leaf,
		baseURL:  baseURL,
		consumed: make(map[int64]bool),
		intn:     rand.Intn,
	}
}

// Draw picks one unconsumed pairable id uniformly at random and returns the
// matching machine and human files as a pair.
func (s *LocalPairSource) Draw(ctx context.Context) (Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.resolved {
		if err := s.resolveLocked(ctx, false); err != nil {
			return Draw{}, err
		}
	}
	if len(s.ids) == 0 {
		// Dry: force a rescan in case the leaf grew since the last resolve.
		if err := s.resolveLocked(ctx, true); err != nil {
			return Draw{}, err
		}
	}
	if len(s.ids) == 0 {
		return Draw{}, ErrExhausted
	}

	i := s.intn(len(s.ids))
	id := s.ids[i]
	s.ids[i] = s.ids[len(s.ids)-1]
	s.ids = s.ids[:len(s.ids)-1]
	s.consumed[id] = true

	ai := Item{
		ID:   id,
		URL:  dataset.FileURL(s.baseURL, s.leaf, dataset.AIFolder, s.aiFiles[id]),
		IsAI: true,
	}
	human := Item{
		ID:  id,
		URL: dataset.FileURL(s.baseURL, s.leaf, dataset.HumanFolder, s.humanFiles[id]),
	}
	return Draw{AI: &ai, Human: &human}, nil
}

// resolveLocked refreshes the pairable id list from the leaf manifest,
// keeping ids consumed earlier in the run excluded. Callers hold s.mu.
func (s *LocalPairSource) resolveLocked(ctx context.Context, invalidate bool) error {
	if invalidate {
		s.resolver.Invalidate(s.leaf)
	}

	manifest, err := s.resolver.ListLeaf(ctx, s.leaf)
	if err != nil {
		return fmt.Errorf("resolve leaf %q: %w", s.leaf, err)
	}

	s.ids = s.ids[:0]
	for _, id := range dataset.PairableIDs(manifest) {
		if !s.consumed[id] {
			s.ids = append(s.ids, id)
		}
	}
	s.aiFiles = dataset.FilesByStem(manifest.AIFiles)
	s.humanFiles = dataset.FilesByStem(manifest.HumanFiles)
	s.resolved = true
	return nil
}
