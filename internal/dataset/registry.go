package dataset

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/models"
)

// RegistryOptions configures the process-wide HTTP plumbing.
type RegistryOptions struct {
	Limiter         httputil.LimiterOptions
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// SalzburgURL and HydroURL override the upstream dataset locations.
	SalzburgURL string
	HydroURL    string
	Scoring     ingest.NameScoring

	// HTTPClient, when set, is borrowed by every session and never closed.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Registry owns the rate limiter, circuit breakers, the shared fallback
// session and the dataset coordinators for one process.
type Registry struct {
	opts     RegistryOptions
	limiter  *httputil.DomainLimiter
	breakers *httputil.Breakers
	logger   zerolog.Logger

	mu           sync.Mutex
	shared       *httputil.Session
	coordinators map[string]*Coordinator
	closed       bool
}

// NewRegistry fills in default limiter and scoring options.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Limiter == (httputil.LimiterOptions{}) {
		opts.Limiter = httputil.DefaultLimiterOptions()
	}
	if opts.Scoring == (ingest.NameScoring{}) {
		opts.Scoring = ingest.DefaultNameScoring
	}
	logger := opts.Logger
	return &Registry{
		opts:         opts,
		limiter:      httputil.NewDomainLimiter(opts.Limiter),
		breakers:     httputil.NewBreakers(opts.BreakerFailures, opts.BreakerTimeout, logutil.Component(logger, "httputil")),
		logger:       logger,
		coordinators: map[string]*Coordinator{},
	}
}

// Limiter is the process-wide per-domain limiter.
func (r *Registry) Limiter() *httputil.DomainLimiter { return r.limiter }

// Breakers holds the per-host circuit breakers shared by every session.
func (r *Registry) Breakers() *httputil.Breakers { return r.breakers }

// NewSession returns a session wired to the shared limiter and breakers. It is
// owned unless the registry was given an HTTPClient.
func (r *Registry) NewSession(userAgent string, timeout time.Duration) *httputil.Session {
	opts := httputil.SessionOptions{
		UserAgent: userAgent,
		Timeout:   timeout,
		Limiter:   r.limiter,
		Breakers:  r.breakers,
		Logger:    logutil.Component(r.logger, "httputil"),
	}
	if r.opts.HTTPClient != nil {
		return httputil.BorrowSession(r.opts.HTTPClient, opts)
	}
	return httputil.NewSession(opts)
}

// SharedSession returns the process-wide fallback session, creating it with
// the first caller's User-Agent.
func (r *Registry) SharedSession(userAgent string) *httputil.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shared == nil {
		r.shared = r.NewSession(userAgent, httputil.DefaultTimeout)
	}
	return r.shared
}

// Coordinator returns the coordinator for a shared-dataset source type,
// creating it on first use.
func (r *Registry) Coordinator(st models.SourceType) (*Coordinator, error) {
	var id string
	switch st {
	case models.SourceSalzburgOGD:
		id = SalzburgDatasetID
	case models.SourceHydroOOE:
		id = HydroDatasetID
	default:
		return nil, fmt.Errorf("source type %s has no shared dataset", st)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("registry closed")
	}
	if c, ok := r.coordinators[id]; ok {
		return c, nil
	}

	var f Fetcher
	if st == models.SourceSalzburgOGD {
		f = NewSalzburgFetcher(r.opts.SalzburgURL, r.logger)
	} else {
		f = NewHydroFetcher(r.opts.HydroURL, r.opts.Scoring, r.logger)
	}
	c := NewCoordinator(f, func(ua string) *httputil.Session {
		return r.NewSession(ua, ingest.BulkTimeout)
	}, r.logger)
	r.coordinators[id] = c
	return c, nil
}

// Coordinators returns every coordinator created so far, ordered by id.
func (r *Registry) Coordinators() []*Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Coordinator, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Close closes every owned session. It is safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	shared := r.shared
	r.shared = nil
	coords := make([]*Coordinator, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		coords = append(coords, c)
	}
	r.closed = true
	r.mu.Unlock()

	for _, c := range coords {
		c.Close()
	}
	if shared != nil {
		shared.Close()
	}
}
