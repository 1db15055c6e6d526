package dataset

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/metrics"
	"github.com/lox/laketemp/internal/models"
)

const (
	DefaultIntervalSeconds = config.DefaultScanInterval

	maxBackoffAttempts    = 8
	backoffFactor         = 2.0
	backoffCapSeconds     = 3600
	notFoundFactor        = 1.2
	notFoundCapSeconds    = 1800
	defaultRetryAfterSecs = 300
)

// FetchOutput is what a Fetcher produces for the current members.
type FetchOutput struct {
	// Readings is keyed by lookup key.
	Readings map[string]models.TemperatureReading
	// Matched maps entity ids to the upstream station that served them.
	Matched map[string]string
	Bytes   int
}

// Fetcher downloads one bulk dataset and maps it onto member lakes.
type Fetcher interface {
	ID() string
	Source() models.SourceType
	LookupKey(lake config.LakeConfig) string
	Fetch(ctx context.Context, sess *httputil.Session, members []config.LakeConfig) (FetchOutput, error)
}

// SessionFactory creates the session a coordinator uses for its downloads.
type SessionFactory func(userAgent string) *httputil.Session

// Coordinator polls one shared upstream dataset on behalf of every lake
// registered with it.
type Coordinator struct {
	fetcher    Fetcher
	newSession SessionFactory
	logger     zerolog.Logger
	now        func() time.Time

	refreshMu sync.Mutex

	mu           sync.Mutex
	members      map[string]config.LakeConfig
	session      *httputil.Session
	userAgent    string
	availability map[string]bool
	attempts     int
	override     int
	interval     int
	data         map[string]models.TemperatureReading
	matched      map[string]string
	onInterval   []func(time.Duration)
}

// NewCoordinator returns a coordinator with no members, polling at the
// default interval.
func NewCoordinator(fetcher Fetcher, newSession SessionFactory, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		fetcher:      fetcher,
		newSession:   newSession,
		logger:       logutil.Component(logger, "dataset."+fetcher.ID()),
		now:          time.Now,
		members:      map[string]config.LakeConfig{},
		availability: map[string]bool{},
		interval:     DefaultIntervalSeconds,
		data:         map[string]models.TemperatureReading{},
		matched:      map[string]string{},
	}
	metrics.DatasetInterval.WithLabelValues(fetcher.ID()).Set(float64(c.interval))
	return c
}

func (c *Coordinator) ID() string                { return c.fetcher.ID() }
func (c *Coordinator) Source() models.SourceType { return c.fetcher.Source() }

// LookupKey is the key under which lake's reading appears in Data.
func (c *Coordinator) LookupKey(lake config.LakeConfig) string {
	return c.fetcher.LookupKey(lake)
}

// OnIntervalChange registers fn to be called whenever the polling interval
// changes. fn runs without the coordinator lock held.
func (c *Coordinator) OnIntervalChange(fn func(time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInterval = append(c.onInterval, fn)
}

// Register adds a lake. Registering the same entity id again is a no-op. The
// first registrant's User-Agent is used for the shared session.
func (c *Coordinator) Register(lake config.LakeConfig) string {
	c.mu.Lock()
	if _, ok := c.members[lake.EntityID]; ok {
		c.mu.Unlock()
		return c.fetcher.LookupKey(lake)
	}
	c.members[lake.EntityID] = lake
	if c.session == nil {
		c.session = c.newSession(lake.UserAgent)
		c.userAgent = lake.UserAgent
	}
	changed := c.recomputeLocked()
	c.mu.Unlock()

	c.logger.Debug().Str("entity_id", lake.EntityID).Str("lake", lake.Name).Msg("registered lake")
	c.notify(changed)
	return c.fetcher.LookupKey(lake)
}

// Unregister removes a lake. When the last lake leaves, the session is closed.
func (c *Coordinator) Unregister(entityID string) {
	c.mu.Lock()
	if _, ok := c.members[entityID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.members, entityID)
	delete(c.matched, entityID)
	changed := c.recomputeLocked()
	var toClose *httputil.Session
	if len(c.members) == 0 {
		toClose, c.session = c.session, nil
	}
	c.mu.Unlock()

	if toClose != nil {
		toClose.Close()
		c.logger.Debug().Msg("last lake unregistered, session closed")
	}
	c.notify(changed)
}

// Close releases the session. It is safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Members returns the registered lakes in no particular order.
func (c *Coordinator) Members() []config.LakeConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]config.LakeConfig, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m)
	}
	return out
}

// HasSession reports whether the coordinator currently holds a session.
func (c *Coordinator) HasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Interval is the current polling interval.
func (c *Coordinator) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.interval) * time.Second
}

// Data returns a copy of the latest successful mapping.
func (c *Coordinator) Data() map[string]models.TemperatureReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyReadings(c.data)
}

// Reading returns the latest reading for a lookup key.
func (c *Coordinator) Reading(key string) (models.TemperatureReading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[key]
	return r, ok
}

// MatchedStation returns the upstream station last selected for entityID.
func (c *Coordinator) MatchedStation(entityID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matched[entityID]
}

// Refresh downloads the dataset once. Failures never clear known readings;
// they only change the polling interval.
func (c *Coordinator) Refresh(ctx context.Context) Result {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	members := make([]config.LakeConfig, 0, len(c.members))
	for _, m := range c.members {
		members = append(members, m)
	}
	if c.session == nil && len(members) > 0 {
		c.session = c.newSession(c.userAgent)
		c.logger.Debug().Msg("session recreated for refresh")
	}
	sess := c.session
	c.mu.Unlock()

	if len(members) == 0 {
		c.mu.Lock()
		c.data = map[string]models.TemperatureReading{}
		c.mu.Unlock()
		metrics.DatasetRefreshTotal.WithLabelValues(c.ID(), OutcomeSuccess.String()).Inc()
		return Success(map[string]models.TemperatureReading{})
	}

	op := logutil.StartOp(c.logger, "refresh", map[string]any{"members": len(members)})
	out, err := c.fetcher.Fetch(ctx, sess, members)
	var res Result
	if err != nil {
		res = c.handleError(err)
	} else {
		res = c.handleSuccess(out)
		op.Set("bytes_downloaded", out.Bytes)
		op.Set("lakes_updated", len(res.Readings))
		op.Set("min_scan_interval", c.minScanInterval())
	}
	op.Set("result", res.Outcome.String())
	if res.Outcome == OutcomeSuccess {
		_ = op.Done(nil)
	} else {
		_ = op.Done(res.Err)
	}
	metrics.DatasetRefreshTotal.WithLabelValues(c.ID(), res.Outcome.String()).Inc()
	return res
}

func (c *Coordinator) handleSuccess(out FetchOutput) Result {
	c.mu.Lock()
	c.attempts = 0
	c.override = 0
	changed := c.recomputeLocked()

	keys := make(map[string]config.LakeConfig, len(c.members))
	for _, m := range c.members {
		keys[c.fetcher.LookupKey(m)] = m
	}

	filtered := make(map[string]models.TemperatureReading, len(keys))
	for key, r := range out.Readings {
		if _, ok := keys[key]; ok {
			filtered[key] = r
		}
	}

	for key, lake := range keys {
		_, present := filtered[key]
		prev, seen := c.availability[key]
		switch {
		case seen && prev && !present:
			c.logger.Warn().Str("lake", lake.Name).Str("key", key).Msg("transitioned to unavailable")
		case seen && !prev && present:
			c.logger.Info().Str("lake", lake.Name).Str("key", key).Msg("recovered to available")
		}
		c.availability[key] = present
		if !present {
			c.logger.Warn().Str("lake", lake.Name).Str("key", key).Msg("dataset missing lake in latest data")
		}
	}

	for entityID, station := range out.Matched {
		if _, ok := c.members[entityID]; ok {
			c.matched[entityID] = station
		}
	}
	c.data = filtered
	res := Success(copyReadings(filtered))
	c.mu.Unlock()

	c.notify(changed)
	return res
}

func (c *Coordinator) handleError(err error) Result {
	c.mu.Lock()
	previous := copyReadings(c.data)
	base := c.minScanIntervalLocked()
	var res Result
	changed := false

	status := ingest.StatusCode(err)
	switch {
	case errors.Is(err, context.Canceled):
		res = Failed(previous, err)

	case status == http.StatusTooManyRequests:
		secs, ok := parseRetryAfter(ingest.RetryAfter(err), c.now())
		if !ok {
			secs = defaultRetryAfterSecs
		}
		c.logger.Warn().Int("retry_after_seconds", secs).Msg("dataset rate limited, respecting Retry-After")
		changed = c.applyRetryAfterLocked(secs)
		res = Skipped(previous, err)

	case status == http.StatusNotFound:
		c.logger.Warn().Msg("dataset returned 404, skipping update this cycle")
		changed = c.applyBackoffLocked(base, notFoundFactor, notFoundCapSeconds)
		res = Skipped(previous, err)

	case status >= 500, errors.Is(err, httputil.ErrTooManyRedirects):
		c.logger.Error().Err(err).Msg("dataset server error")
		changed = c.applyBackoffLocked(base, backoffFactor, backoffCapSeconds)
		res = Failed(previous, err)

	case ingest.IsParse(err), ingest.IsNoData(err):
		// The upstream answered; the payload is the problem.
		c.attempts = 0
		c.override = 0
		changed = c.recomputeLocked()
		res = Failed(previous, err)

	default:
		c.logger.Error().Err(err).Msg("dataset refresh failed during download")
		changed = c.applyBackoffLocked(base, backoffFactor, backoffCapSeconds)
		res = Failed(previous, err)
	}
	c.mu.Unlock()

	c.notify(changed)
	return res
}

func (c *Coordinator) minScanInterval() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minScanIntervalLocked()
}

func (c *Coordinator) minScanIntervalLocked() int {
	if len(c.members) == 0 {
		return DefaultIntervalSeconds
	}
	lowest := 0
	for _, m := range c.members {
		if lowest == 0 || m.ScanInterval < lowest {
			lowest = m.ScanInterval
		}
	}
	return lowest
}

// recomputeLocked sets the interval from the backoff override or the member
// minimum and reports whether it changed.
func (c *Coordinator) recomputeLocked() bool {
	next := c.minScanIntervalLocked()
	if c.override > 0 {
		next = c.override
	}
	return c.setIntervalLocked(next)
}

func (c *Coordinator) setIntervalLocked(secs int) bool {
	if secs == c.interval {
		return false
	}
	c.interval = secs
	metrics.DatasetInterval.WithLabelValues(c.ID()).Set(float64(secs))
	return true
}

func (c *Coordinator) applyBackoffLocked(base int, factor float64, capSecs int) bool {
	c.attempts = min(c.attempts+1, maxBackoffAttempts)
	next := backoffSeconds(base, factor, capSecs, c.attempts)
	c.override = max(base, next)
	c.logger.Debug().Int("attempts", c.attempts).Int("update_interval", c.override).Msg("applied backoff")
	return c.setIntervalLocked(c.override)
}

func (c *Coordinator) applyRetryAfterLocked(secs int) bool {
	c.override = max(1, secs)
	c.logger.Debug().Int("update_interval", c.override).Msg("applied Retry-After override")
	return c.setIntervalLocked(c.override)
}

func (c *Coordinator) notify(changed bool) {
	if !changed {
		return
	}
	c.mu.Lock()
	d := time.Duration(c.interval) * time.Second
	fns := append([]func(time.Duration){}, c.onInterval...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

// backoffSeconds returns min(cap, base*factor^attempts) using a jitter-free
// exponential backoff.
func backoffSeconds(base int, factor float64, capSecs, attempts int) int {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(base) * time.Second
	b.Multiplier = factor
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(capSecs) * time.Second
	b.MaxElapsedTime = 0
	b.Reset()

	var next time.Duration
	for i := 0; i <= attempts; i++ {
		next = b.NextBackOff()
	}
	return min(capSecs, int(math.Round(next.Seconds())))
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(header string, now time.Time) (int, bool) {
	h := strings.TrimSpace(header)
	if h == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return secs, true
	}
	if t, err := http.ParseTime(h); err == nil {
		return max(0, int(t.Sub(now)/time.Second)), true
	}
	return 0, false
}

func copyReadings(in map[string]models.TemperatureReading) map[string]models.TemperatureReading {
	out := make(map[string]models.TemperatureReading, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
