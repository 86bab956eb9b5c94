package tradestore

import (
	"sync"

	"tradepipeline/internal/domain/entity/pipeline"
)

// Store keeps trades in memory for the life of the process. A trade id that
// is reused replaces the earlier trade.
type Store struct {
	mu     sync.RWMutex
	trades map[string]pipeline.Trade
}

func NewStore() *Store {
	return &Store{trades: make(map[string]pipeline.Trade)}
}

func (s *Store) Put(trade pipeline.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[trade.TradeID] = trade
}

func (s *Store) Get(tradeID string) (pipeline.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trade, ok := s.trades[tradeID]
	return trade, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}
