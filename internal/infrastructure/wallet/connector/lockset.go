package connector

import (
	"sync"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

// utxoLockSet is the advisory set of utxos reserved by swaps in progress.
type utxoLockSet struct {
	mu     *sync.Mutex
	locked map[string]struct{}
}

func newUtxoLockSet() *utxoLockSet {
	return &utxoLockSet{&sync.Mutex{}, make(map[string]struct{})}
}

// lock reserves all the given utxos, or none if any of them is already
// reserved.
func (s *utxoLockSet) lock(utxos []domain.Utxo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range utxos {
		if _, ok := s.locked[u.Key()]; ok {
			return false
		}
	}
	for _, u := range utxos {
		s.locked[u.Key()] = struct{}{}
	}
	return true
}

func (s *utxoLockSet) unlock(utxos []domain.Utxo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range utxos {
		delete(s.locked, u.Key())
	}
}

func (s *utxoLockSet) filter(utxos []domain.Utxo) []domain.Utxo {
	s.mu.Lock()
	defer s.mu.Unlock()

	free := make([]domain.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if _, ok := s.locked[u.Key()]; !ok {
			free = append(free, u)
		}
	}
	return free
}
