// Package poller detects pull-request creation and updates on repositories
// without webhook support by diffing the open-PR list across poll cycles.
//
// Detection relies solely on the UpdatedAt timestamp reported by the source.
// Two edits landing within the same timestamp resolution are seen as one.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/igorsal/pr-sentinel/internal/bus"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
	"github.com/igorsal/pr-sentinel/internal/models"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

const (
	DefaultInterval = 60 * time.Second
	MinInterval     = 1 * time.Second
)

// ErrNoRepositories is returned by Start when nothing is monitored
var ErrNoRepositories = errors.New("poller: no repositories to monitor")

// Config configures a Poller
type Config struct {
	Interval     time.Duration
	Repositories []models.MonitoredRepository
}

// Poller periodically lists open pull requests per repository and publishes
// new_pr, updated_pr and error notifications on the bus.
type Poller struct {
	source   interfaces.SourceClient
	bus      *bus.Bus
	logger   interfaces.Logger
	metrics  interfaces.MetricsCollector
	interval time.Duration

	// pollMu serializes poll cycles so a manual Poll never interleaves with a
	// scheduled one on the same ledger.
	pollMu sync.Mutex

	mu      sync.Mutex
	repos   []models.MonitoredRepository
	ledger  map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPoller validates cfg and creates a stopped poller
func NewPoller(source interfaces.SourceClient, b *bus.Bus, cfg Config, logger interfaces.Logger, metrics interfaces.MetricsCollector) (*Poller, error) {
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		return nil, fmt.Errorf("poller: interval %s is below the minimum of %s", interval, MinInterval)
	}

	p := &Poller{
		source:   source,
		bus:      b,
		logger:   logger.With("component", "poller"),
		metrics:  metrics,
		interval: interval,
		ledger:   make(map[string]time.Time),
	}
	for _, r := range cfg.Repositories {
		p.addLocked(r)
	}
	p.metrics.SetGauge("monitored_repositories", float64(len(p.repos)), nil)

	return p, nil
}

// Interval returns the configured poll interval
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start runs one poll cycle immediately and then schedules one per interval.
// It is a no-op when the poller is already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	if len(p.repos) == 0 {
		p.mu.Unlock()
		return ErrNoRepositories
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	p.logger.Info("Starting repository poller",
		"interval", p.interval.String(),
		"repositories", len(p.Repositories()),
	)

	p.Poll(ctx)
	go p.run(ctx, stopCh, doneCh)

	return nil
}

// Stop cancels the schedule and waits for the loop to exit. Safe to call
// more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
	p.logger.Info("Repository poller stopped")
}

// markStopped clears the running state when the loop exits on its own,
// unless Stop or a later Start already replaced it.
func (p *Poller) markStopped(doneCh chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && p.doneCh == doneCh {
		p.running = false
	}
	p.logger.Info("Repository poller stopped: context cancelled")
}

// IsRunning reports whether the schedule is active
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			p.markStopped(doneCh)
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one cycle over every monitored repository, in order. A failing
// repository publishes an error notification and does not stop the cycle.
func (p *Poller) Poll(ctx context.Context) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	start := time.Now()
	for _, repo := range p.Repositories() {
		if ctx.Err() != nil {
			return
		}
		p.pollRepository(ctx, repo)
	}

	p.metrics.RecordDuration("poll_cycle_duration_seconds", time.Since(start).Seconds(), nil)
	p.metrics.SetGauge("tracked_pull_requests", float64(p.TrackedCount()), nil)
}

func (p *Poller) pollRepository(ctx context.Context, repo models.MonitoredRepository) {
	prs, err := p.source.ListOpenPullRequests(ctx, repo.Owner, repo.Name)
	if err != nil {
		kind := classify(err)
		p.logger.Error("Failed to list open pull requests", err,
			"repository", repo.FullName(),
			"kind", string(kind),
		)
		p.metrics.IncrementCounter("poll_repository_total", map[string]string{"repository": repo.FullName(), "status": "error"})
		p.bus.Publish(bus.TopicError, models.ErrorNotice{
			Source:     "poller",
			Repository: repo.FullName(),
			Kind:       kind,
			Message:    err.Error(),
			Err:        err,
			OccurredAt: time.Now(),
		})
		return
	}
	p.metrics.IncrementCounter("poll_repository_total", map[string]string{"repository": repo.FullName(), "status": "success"})

	type emission struct {
		topic  bus.Topic
		change models.PRChange
	}
	var emissions []emission

	now := time.Now()
	p.mu.Lock()
	if !p.monitoredLocked(repo) {
		// removed while the list call was in flight
		p.mu.Unlock()
		return
	}
	current := make(map[string]struct{}, len(prs))
	for _, pr := range prs {
		key := models.LedgerKey(repo.Owner, repo.Name, pr.Number)
		current[key] = struct{}{}

		previous, seen := p.ledger[key]
		switch {
		case !seen:
			p.ledger[key] = pr.UpdatedAt
			emissions = append(emissions, emission{bus.TopicNewPR, models.PRChange{
				PullRequest: pr, Repository: repo, DetectedAt: now,
			}})
		case !previous.Equal(pr.UpdatedAt):
			p.ledger[key] = pr.UpdatedAt
			prev := previous
			emissions = append(emissions, emission{bus.TopicUpdatedPR, models.PRChange{
				PullRequest: pr, Repository: repo, PreviousUpdatedAt: &prev, DetectedAt: now,
			}})
		}
	}

	// Anything no longer open was closed or merged; forget it silently.
	prefix := ledgerPrefix(repo)
	for key := range p.ledger {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, open := current[key]; !open {
			delete(p.ledger, key)
		}
	}
	p.mu.Unlock()

	for _, e := range emissions {
		p.logger.Debug("Pull request change detected",
			"repository", repo.FullName(),
			"number", e.change.PullRequest.Number,
			"type", string(e.topic),
		)
		p.metrics.IncrementCounter("pr_changes_total", map[string]string{"repository": repo.FullName(), "type": string(e.topic)})
		p.bus.Publish(e.topic, e.change)
	}
}

// AddRepository starts monitoring repo. It returns false if already monitored.
func (p *Poller) AddRepository(repo models.MonitoredRepository) bool {
	p.mu.Lock()
	added := p.addLocked(repo)
	count := len(p.repos)
	p.mu.Unlock()

	if added {
		p.logger.Info("Repository added", "repository", repo.FullName())
		p.metrics.SetGauge("monitored_repositories", float64(count), nil)
	}
	return added
}

func (p *Poller) addLocked(repo models.MonitoredRepository) bool {
	if p.monitoredLocked(repo) {
		return false
	}
	p.repos = append(p.repos, repo)
	return true
}

func (p *Poller) monitoredLocked(repo models.MonitoredRepository) bool {
	for _, r := range p.repos {
		if r == repo {
			return true
		}
	}
	return false
}

// RemoveRepository stops monitoring repo and forgets its ledger entries, so
// re-adding it later reports its open pull requests as new again.
func (p *Poller) RemoveRepository(repo models.MonitoredRepository) bool {
	p.mu.Lock()
	removed := false
	for i, r := range p.repos {
		if r == repo {
			p.repos = append(p.repos[:i:i], p.repos[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		prefix := ledgerPrefix(repo)
		for key := range p.ledger {
			if strings.HasPrefix(key, prefix) {
				delete(p.ledger, key)
			}
		}
	}
	count, tracked := len(p.repos), len(p.ledger)
	p.mu.Unlock()

	if removed {
		p.logger.Info("Repository removed", "repository", repo.FullName())
		p.metrics.SetGauge("monitored_repositories", float64(count), nil)
		p.metrics.SetGauge("tracked_pull_requests", float64(tracked), nil)
	}
	return removed
}

// Repositories returns a copy of the monitored set in insertion order
func (p *Poller) Repositories() []models.MonitoredRepository {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.MonitoredRepository, len(p.repos))
	copy(out, p.repos)
	return out
}

// TrackedCount returns the number of open pull requests in the ledger
func (p *Poller) TrackedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ledger)
}

func ledgerPrefix(repo models.MonitoredRepository) string {
	return repo.Owner + "/" + repo.Name + "/"
}

func classify(err error) models.ErrorKind {
	switch pkgerrors.TypeOf(err) {
	case pkgerrors.ErrorTypeUnauthorized:
		return models.ErrorKindAuth
	case pkgerrors.ErrorTypeForbidden:
		return models.ErrorKindPermission
	case pkgerrors.ErrorTypeNotFound:
		return models.ErrorKindNotFound
	default:
		return models.ErrorKindOther
	}
}
