package monitoring

import (
	"context"
	"strconv"
	"time"

	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry so tests and multiple servers
// in one process never collide on registration.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	taskMutations *prometheus.CounterVec
	denials       *prometheus.CounterVec
	startTime     time.Time
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanban",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kanban",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kanban",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		taskMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanban",
			Name:      "task_mutations_total",
			Help:      "Successful task writes by operation.",
		}, []string{"op"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanban",
			Name:      "authorization_denials_total",
			Help:      "Permission evaluator denials by resource and action.",
		}, []string{"resource", "action"}),
		startTime: time.Now(),
	}
	registry.MustRegister(m.requests, m.duration, m.inFlight, m.taskMutations, m.denials)
	return m
}

// Registry is shared with components that register their own collectors,
// such as the cache.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inFlight.Inc()

		c.Next()

		m.inFlight.Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
}

// RecordTaskMutation counts one successful create, update or delete.
func (m *Metrics) RecordTaskMutation(op string) {
	m.taskMutations.WithLabelValues(op).Inc()
}

// InstrumentAuthorizer counts every denial the wrapped evaluator issues.
func (m *Metrics) InstrumentAuthorizer(inner services.AuthorizationService) services.AuthorizationService {
	return &instrumentedAuthorizer{inner: inner, denials: m.denials}
}

type instrumentedAuthorizer struct {
	inner   services.AuthorizationService
	denials *prometheus.CounterVec
}

func (a *instrumentedAuthorizer) Decide(actor models.Actor, target services.Target, action models.Action) services.AuthorizationDecision {
	decision := a.inner.Decide(actor, target, action)
	if !decision.Allowed {
		a.denials.WithLabelValues(string(target.Resource), string(action)).Inc()
	}
	return decision
}

func (a *instrumentedAuthorizer) Allowed(actor models.Actor, target services.Target, action models.Action) bool {
	return a.Decide(actor, target, action).Allowed
}

// InstrumentTasks counts successful task writes passing through inner.
func (m *Metrics) InstrumentTasks(inner services.TaskService) services.TaskService {
	return &instrumentedTasks{TaskService: inner, metrics: m}
}

type instrumentedTasks struct {
	services.TaskService
	metrics *Metrics
}

func (t *instrumentedTasks) CreateTask(ctx context.Context, actor models.Actor, projectID uuid.UUID, input services.TaskInput) (*models.Task, error) {
	task, err := t.TaskService.CreateTask(ctx, actor, projectID, input)
	if err == nil {
		t.metrics.RecordTaskMutation("create")
	}
	return task, err
}

func (t *instrumentedTasks) UpdateTask(ctx context.Context, actor models.Actor, id uuid.UUID, patch services.TaskPatch, replace bool) (*models.Task, error) {
	task, err := t.TaskService.UpdateTask(ctx, actor, id, patch, replace)
	if err == nil {
		t.metrics.RecordTaskMutation("update")
	}
	return task, err
}

func (t *instrumentedTasks) DeleteTask(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	err := t.TaskService.DeleteTask(ctx, actor, id)
	if err == nil {
		t.metrics.RecordTaskMutation("delete")
	}
	return err
}
