package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/hotwellkz/app122/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler wires a task type to its handler during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueRosterReconcile enqueues a roster reconcile task.
func (c *Client) EnqueueRosterReconcile(ctx context.Context) (*asynq.TaskInfo, error) {
	task, err := NewRosterReconcileTask(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// EnqueueSessionsPurge enqueues a session purge task.
func (c *Client) EnqueueSessionsPurge(ctx context.Context) (*asynq.TaskInfo, error) {
	task, err := NewSessionsPurgeTask(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability and manual triggers.
type Handler struct {
	inspector *asynq.Inspector
	client    *Client
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, client *Client, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, client: client, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/roster-reconcile", h.triggerRosterReconcile)
	r.Post("/sessions-purge", h.triggerSessionsPurge)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	health := queueHealth{Queue: QueueDefault}
	if info != nil {
		health.Queue = info.Queue
		health.Pending = info.Pending
	}
	httpx.JSON(w, http.StatusOK, health)
}

func (h *Handler) triggerRosterReconcile(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "roster reconcile", func(ctx context.Context) error {
		_, err := h.client.EnqueueRosterReconcile(ctx)
		return err
	})
}

func (h *Handler) triggerSessionsPurge(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "sessions purge", func(ctx context.Context) error {
		_, err := h.client.EnqueueSessionsPurge(ctx)
		return err
	})
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request, name string, enqueue func(context.Context) error) {
	if h.client == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	if err := enqueue(r.Context()); err != nil {
		h.logger.Warn("enqueue "+name, slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}
