package wallclock

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
	"go.uber.org/zap"

	"github.com/latticedb/lattice/pkg/log"
)

const (
	ntpBackoffInitial = 5 * time.Second
	ntpBackoffMax     = 5 * time.Minute
)

// NTPSource reads the system clock corrected by a periodically refreshed
// offset from an NTP server.
//
// If a sync fails the previous offset is kept and the next sync is retried
// with exponential backoff, so a flaky NTP server degrades to the system
// clock rather than blocking callers.
type NTPSource struct {
	server       string
	syncInterval time.Duration

	mu       sync.Mutex
	offset   time.Duration
	lastSync time.Time
	backoff  time.Duration

	logger log.Logger
}

func NewNTPSource(server string, syncInterval time.Duration, logger log.Logger) *NTPSource {
	s := &NTPSource{
		server:       server,
		syncInterval: syncInterval,
		logger:       logger.WithSubsystem("wallclock"),
	}
	if err := s.sync(); err != nil {
		// An unreachable server at startup is not fatal. Start with a zero
		// offset and retry.
		s.logger.Warn("initial ntp sync failed", zap.Error(err))
	}
	return s
}

func (s *NTPSource) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSyncLocked()
	return time.Now().Add(s.offset)
}

func (s *NTPSource) maybeSyncLocked() {
	interval := s.syncInterval
	if s.backoff > 0 {
		interval = s.backoff
	}
	if time.Since(s.lastSync) < interval {
		return
	}

	if err := s.syncLocked(); err != nil {
		if s.backoff == 0 {
			s.backoff = ntpBackoffInitial
		} else {
			s.backoff *= 2
			if s.backoff > ntpBackoffMax {
				s.backoff = ntpBackoffMax
			}
		}
		s.logger.Warn("ntp sync failed", zap.Error(err))
		return
	}
	s.backoff = 0
}

func (s *NTPSource) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked()
}

func (s *NTPSource) syncLocked() error {
	resp, err := ntp.Query(s.server)
	if err != nil {
		return err
	}
	s.offset = resp.ClockOffset
	s.lastSync = time.Now()

	s.logger.Debug(
		"synced ntp offset",
		zap.String("server", s.server),
		zap.Duration("offset", s.offset),
	)
	return nil
}

var _ Source = &NTPSource{}
