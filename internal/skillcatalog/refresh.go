// ABOUTME: Background refresh loop that pulls peer publishes into the in-memory map
// ABOUTME: Runs on a timer, short-circuited by the local ObjectStore's fsnotify channel when present

package skillcatalog

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("skillcatalog")

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_refresh_total",
		Help: "Catalog refresh cycles by outcome.",
	}, []string{"outcome"})
	activeSkills = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_active_skills",
		Help: "Number of skills currently loaded in the in-memory catalog.",
	})
)

// changeNotifier is satisfied by objectstore.LocalStore; it lets the
// refresh loop short-circuit its timer when the local filesystem reports a
// change instead of waiting a full interval.
type changeNotifier interface {
	Changed() <-chan string
}

// RunRefreshLoop re-syncs the in-memory map from the MetadataStore every
// interval, or immediately whenever notifier reports a filesystem change
// (local backend only). It blocks until ctx is cancelled.
func (c *Catalog) RunRefreshLoop(ctx context.Context, interval time.Duration, notifier changeNotifier) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var changed <-chan string
	if notifier != nil {
		changed = notifier.Changed()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshOnce(ctx)
		case id := <-changed:
			c.logger.Debug("short-circuiting refresh due to filesystem change", "skill_id", id)
			c.refreshOnce(ctx)
		}
	}
}

func (c *Catalog) refreshOnce(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "catalog.refresh")
	defer span.End()

	metas, err := c.meta.List(ctx, "active")
	if err != nil {
		refreshTotal.WithLabelValues("error").Inc()
		span.SetAttributes(attribute.Bool("error", true))
		c.logger.Warn("catalog refresh failed to list active skills", "error", err)
		return
	}

	c.mu.RLock()
	known := make(map[string]int, len(c.skills))
	for id, s := range c.skills {
		known[id] = s.Version
	}
	c.mu.RUnlock()

	for _, m := range metas {
		if v, ok := known[m.ID]; ok && v == m.Version {
			continue
		}
		if _, err := c.Reload(ctx, m.ID); err != nil {
			c.logger.Warn("catalog refresh failed to reload skill", "skill_id", m.ID, "error", err)
		}
	}

	activeIDs := make(map[string]bool, len(metas))
	for _, m := range metas {
		activeIDs[m.ID] = true
	}
	c.mu.Lock()
	for id := range c.skills {
		if !activeIDs[id] {
			delete(c.skills, id)
		}
	}
	c.mu.Unlock()

	refreshTotal.WithLabelValues("ok").Inc()
	activeSkills.Set(float64(c.ActiveCount()))
}
