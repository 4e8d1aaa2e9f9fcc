package inmemory

import (
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
)

type repoManager struct {
	descrRepository   domain.TransactionDescrRepository
	historyRepository domain.SwapHistoryRepository
}

// NewRepoManager returns a RepoManager whose repositories are all held in
// memory.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		descrRepository:   NewTransactionDescrRepositoryImpl(),
		historyRepository: NewSwapHistoryRepositoryImpl(),
	}
}

func (m *repoManager) TransactionDescrRepository() domain.TransactionDescrRepository {
	return m.descrRepository
}

func (m *repoManager) SwapHistoryRepository() domain.SwapHistoryRepository {
	return m.historyRepository
}

func (m *repoManager) Close() {
	m.historyRepository.Close()
}
