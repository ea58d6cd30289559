package feed

import (
	"context"
	"fmt"

	"github.com/ashureev/fauxto/internal/domain"
)

// RemotePairSource builds pairs from the backend's per-session reservation
// ledger: one machine-generated and one human item per draw. The two sides
// are reserved independently, so they are random cross-pairs rather than
// stem matches.
type RemotePairSource struct {
	reserver  Reserver
	sessionID int64
}

// NewRemotePairSource creates a pair source bound to one session.
func NewRemotePairSource(reserver Reserver, sessionID int64) *RemotePairSource {
	return &RemotePairSource{reserver: reserver, sessionID: sessionID}
}

// Draw reserves one item from each category. Either side running dry means
// the pair feed is exhausted.
func (s *RemotePairSource) Draw(ctx context.Context) (Draw, error) {
	aiItems, err := s.reserver.ReserveBatch(ctx, s.sessionID, string(domain.CategoryAI), 1)
	if err != nil {
		return Draw{}, fmt.Errorf("reserve machine side: %w", err)
	}
	if len(aiItems) == 0 {
		return Draw{}, ErrExhausted
	}

	humanItems, err := s.reserver.ReserveBatch(ctx, s.sessionID, string(domain.CategoryHuman), 1)
	if err != nil {
		return Draw{}, fmt.Errorf("reserve human side: %w", err)
	}
	if len(humanItems) == 0 {
		return Draw{}, ErrExhausted
	}

	ai := aiItems[0]
	ai.IsAI = true
	return Draw{AI: &ai, Human: &humanItems[0]}, nil
}

// RemoteSingleSource draws one item per round from the backend, category
// unconstrained.
type RemoteSingleSource struct {
	reserver  Reserver
	sessionID int64
}

// NewRemoteSingleSource creates a single-item source bound to one session.
func NewRemoteSingleSource(reserver Reserver, sessionID int64) *RemoteSingleSource {
	return &RemoteSingleSource{reserver: reserver, sessionID: sessionID}
}

// Draw reserves the next unseen item. A nil item means the session has seen
// the whole catalog.
func (s *RemoteSingleSource) Draw(ctx context.Context) (Draw, error) {
	item, err := s.reserver.ReserveOne(ctx, s.sessionID)
	if err != nil {
		return Draw{}, fmt.Errorf("reserve next item: %w", err)
	}
	if item == nil {
		return Draw{}, ErrExhausted
	}
	return Draw{Item: item}, nil
}
