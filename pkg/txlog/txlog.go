// Package txlog records the raw transactions built and broadcast by the
// wallet connectors, one TXLOG_<YYYYMMDD>.log file per day.
package txlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
)

const (
	filePrefix = "TXLOG_"
	dayLayout  = "20060102"

	maxFileSizeMB = 100
	maxAgeDays    = 90
)

// Transaction kinds.
const (
	KindDeposit   = "deposit"
	KindRefund    = "refund"
	KindPayment   = "payment"
	KindBroadcast = "broadcast"
)

// Logger writes one entry per transaction to the file of the current day.
// A nil *Logger discards everything.
type Logger struct {
	dir string
	now func() time.Time

	mu   *sync.Mutex
	day  string
	file *lumberjack.Logger
	log  *log.Logger
}

// New returns a logger writing into dir, created if missing.
func New(dir string) (*Logger, error) {
	return newLogger(dir, time.Now)
}

func newLogger(dir string, now func() time.Time) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create txlog dir: %w", err)
	}

	l := &Logger{
		dir: dir,
		now: now,
		mu:  &sync.Mutex{},
		log: log.New(),
	}
	l.log.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		DisableQuote:     true,
		QuoteEmptyFields: true,
	})
	l.log.SetLevel(log.InfoLevel)
	l.log.SetOutput(l)
	return l, nil
}

// Transaction records the raw hex of a transaction of the given kind.
func (l *Logger) Transaction(currency, kind, txid, txHex string) {
	if l == nil {
		return
	}
	l.log.WithFields(log.Fields{
		"currency": currency,
		"kind":     kind,
		"txid":     txid,
	}).Info(txHex)
}

// Write implements io.Writer, switching file when the day changes.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.now().UTC().Format(dayLayout)
	if day != l.day {
		if l.file != nil {
			if err := l.file.Close(); err != nil {
				log.WithError(err).Warn("txlog: failed to close file")
			}
		}
		l.file = &lumberjack.Logger{
			Filename: FileName(l.dir, l.now()),
			MaxSize:  maxFileSizeMB,
			MaxAge:   maxAgeDays,
		}
		l.day = day
	}
	return l.file.Write(p)
}

// Close closes the file of the current day.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.day = ""
	return err
}

// FileName returns the path of the file holding the entries of the day of t.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, filePrefix+t.UTC().Format(dayLayout)+".log")
}
