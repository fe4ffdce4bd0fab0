// Package metrics exposes the three engines' operational state as
// Prometheus gauges/counters behind a gorilla/mux HTTP server, adapted
// from the teacher's chain/monitoring metrics server: same
// registry/server/Start-Stop shape, new gauge set for the PoE domain.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the metrics HTTP server.
type Config struct {
	ListenAddr  string
	MetricsPath string
	HealthPath  string
}

// Server hosts the Prometheus registry and exposes /metrics and
// /healthz over HTTP.
type Server struct {
	cfg      Config
	registry *prometheus.Registry

	EngagementTotalPoints prometheus.Gauge
	EngagementMemberCount prometheus.Gauge
	EngagementDistributed prometheus.Counter
	EngagementHalflifeRuns prometheus.Counter

	StakeTotalLiquid  prometheus.Gauge
	StakeTotalVesting prometheus.Gauge
	StakeClaimCount   prometheus.Gauge
	StakeAutoReleases prometheus.Counter

	ValidatorActiveCount prometheus.Gauge
	ValidatorJailedCount prometheus.Gauge
	SlashingEvents       *prometheus.CounterVec
	EpochNumber          prometheus.Gauge

	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	startTime time.Time
}

// NewServer constructs and registers every collector, but does not
// bind a listener until Start is called.
func NewServer(cfg Config) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.initMetrics()
	s.setupRouter()
	return s
}

func (s *Server) initMetrics() {
	s.EngagementTotalPoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_engagement_total_points",
		Help: "Current sum of all engagement members' points",
	})
	s.EngagementMemberCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_engagement_member_count",
		Help: "Current number of engagement members",
	})
	s.EngagementDistributed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poe_engagement_distributed_total",
		Help: "Total rewards folded into the engagement distribution pool",
	})
	s.EngagementHalflifeRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poe_engagement_halflife_runs_total",
		Help: "Number of halflife reductions applied",
	})

	s.StakeTotalLiquid = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_stake_total_liquid",
		Help: "Current total liquid bonded stake",
	})
	s.StakeTotalVesting = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_stake_total_vesting",
		Help: "Current total vesting bonded stake",
	})
	s.StakeClaimCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_stake_claim_count",
		Help: "Current number of pending unbonding claims",
	})
	s.StakeAutoReleases = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poe_stake_auto_releases_total",
		Help: "Number of claims released by the end-block auto-release path",
	})

	s.ValidatorActiveCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_validator_active_count",
		Help: "Current size of the active validator set",
	})
	s.ValidatorJailedCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_validator_jailed_count",
		Help: "Current number of jailed operators",
	})
	s.SlashingEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poe_slashing_events_total",
		Help: "Total slashing events by reason",
	}, []string{"reason"})
	s.EpochNumber = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poe_validator_epoch",
		Help: "Current epoch number",
	})

	s.registry.MustRegister(
		s.EngagementTotalPoints, s.EngagementMemberCount, s.EngagementDistributed, s.EngagementHalflifeRuns,
		s.StakeTotalLiquid, s.StakeTotalVesting, s.StakeClaimCount, s.StakeAutoReleases,
		s.ValidatorActiveCount, s.ValidatorJailedCount, s.SlashingEvents, s.EpochNumber,
	)
}

func (s *Server) setupRouter() {
	router := mux.NewRouter()
	router.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc(s.cfg.HealthPath, s.handleHealth).Methods(http.MethodGet)
	s.server = &http.Server{Addr: s.cfg.ListenAddr, Handler: router}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	return err
}
