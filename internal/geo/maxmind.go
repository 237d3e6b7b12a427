package geo

import (
	"net"
	"strings"
	"sync"

	"github.com/oschwald/maxminddb-golang"
	"github.com/pkg/errors"
)

// ErrInvalidIP marks lookups on addresses that cannot be parsed. Local and
// synthetic traffic produces these constantly, so callers treat it as a
// benign outcome and keep it away from the error tracker.
var ErrInvalidIP = errors.New("invalid IP address")

type cityRecord struct {
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// MaxMindLocator answers point lookups from a local MaxMind city database.
// Reload swaps the open reader under a write lock, so the cron refresh never
// stalls lookups on the ingestion path.
type MaxMindLocator struct {
	dbPath string

	mu     sync.RWMutex
	reader *maxminddb.Reader
}

func NewMaxMindLocator(dbPath string) (*MaxMindLocator, error) {
	locator := &MaxMindLocator{dbPath: dbPath}
	if err := locator.Reload(); err != nil {
		return nil, err
	}
	return locator, nil
}

func (l *MaxMindLocator) Lookup(ip string) (float64, float64, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return 0, 0, ErrInvalidIP
	}

	l.mu.RLock()
	reader := l.reader
	l.mu.RUnlock()
	if reader == nil {
		return 0, 0, errors.New("geoip database not loaded")
	}

	var record cityRecord
	if err := reader.Lookup(parsed, &record); err != nil {
		return 0, 0, errors.Wrap(err, "geoip lookup failed")
	}

	return record.Location.Latitude, record.Location.Longitude, nil
}

func (l *MaxMindLocator) Reload() error {
	reader, err := maxminddb.Open(l.dbPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open geoip database %s", l.dbPath)
	}

	l.mu.Lock()
	old := l.reader
	l.reader = reader
	l.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (l *MaxMindLocator) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reader != nil {
		l.reader.Close()
		l.reader = nil
	}
}
