package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/internal/infrastructure/storage/db/inmemory"
	"github.com/timshannon/badgerhold/v4"
)

const gcInterval = 30 * time.Minute

type repoManager struct {
	descrRepository   domain.TransactionDescrRepository
	historyRepository domain.SwapHistoryRepository
}

// NewRepoManager opens (or creates if not exists) the swap history store in
// the given base dir. Swaps in progress are kept in memory.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	history, err := NewSwapHistoryRepositoryImpl(baseDbDir, logger)
	if err != nil {
		return nil, err
	}
	return &repoManager{
		descrRepository:   inmemory.NewTransactionDescrRepositoryImpl(),
		historyRepository: history,
	}, nil
}

func (m *repoManager) TransactionDescrRepository() domain.TransactionDescrRepository {
	return m.descrRepository
}

func (m *repoManager) SwapHistoryRepository() domain.SwapHistoryRepository {
	return m.historyRepository
}

func (m *repoManager) Close() {
	if err := m.historyRepository.Close(); err != nil {
		log.WithError(err).Warn("failed to close swap history db")
	}
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(value)
}

// createDb opens a badgerhold store in dbDir, or in memory if dbDir is
// empty. The returned stop func terminates the value log GC of on-disk
// stores.
func createDb(
	dbDir string, logger badger.Logger,
) (*badgerhold.Store, func(), error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening db: %w", err)
	}

	if isInMemory {
		return db, func() {}, nil
	}

	ticker := time.NewTicker(gcInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}
	}()

	return db, func() {
		ticker.Stop()
		close(done)
	}, nil
}

func historyDir(baseDbDir string) string {
	if len(baseDbDir) <= 0 {
		return ""
	}
	return filepath.Join(baseDbDir, "history")
}
