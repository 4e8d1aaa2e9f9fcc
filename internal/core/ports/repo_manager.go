package ports

import "github.com/tdex-network/xbridge/internal/core/domain"

// RepoManager gives access to the repositories of the swaps of a node.
type RepoManager interface {
	TransactionDescrRepository() domain.TransactionDescrRepository
	SwapHistoryRepository() domain.SwapHistoryRepository
	Close()
}
