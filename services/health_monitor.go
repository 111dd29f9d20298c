package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"pdf-rag-service/internal/logger"
	"pdf-rag-service/internal/telemetry"
)

// HealthMonitor probes the vector store backend on a schedule so an
// unreachable backend shows up in logs and metrics before the next request
// fails. The probe never mutates backend state.
type HealthMonitor struct {
	engine    *RetrievalEngine
	metrics   *telemetry.Metrics
	scheduler *gocron.Scheduler
}

func NewHealthMonitor(engine *RetrievalEngine, metrics *telemetry.Metrics) *HealthMonitor {
	return &HealthMonitor{
		engine:    engine,
		metrics:   metrics,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start begins probing every interval seconds. A zero interval disables the
// monitor.
func (m *HealthMonitor) Start(intervalSeconds int) error {
	if intervalSeconds <= 0 {
		return nil
	}

	_, err := m.scheduler.Every(intervalSeconds).Seconds().Do(m.probe)
	if err != nil {
		return err
	}
	m.scheduler.StartAsync()
	return nil
}

func (m *HealthMonitor) Stop() {
	m.scheduler.Stop()
}

func (m *HealthMonitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	health := m.engine.Health(ctx)
	if m.metrics != nil {
		m.metrics.RecordHealthProbe(m.engine.Backend(), health.Healthy)
	}
	if !health.Healthy {
		logger.Warn("Vector store health probe failed",
			"backend", m.engine.Backend(),
			"detail", health.Detail,
		)
	}
}
