package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/backup"
	"github.com/dukerupert/notifly/internal/email"
	"github.com/dukerupert/notifly/internal/handler"
	"github.com/dukerupert/notifly/internal/metrics"
	"github.com/dukerupert/notifly/internal/middleware"
	"github.com/dukerupert/notifly/internal/push"
	"github.com/dukerupert/notifly/internal/store"
	ws "github.com/dukerupert/notifly/internal/websocket"
)

// Options are the collaborators a Server is built from. Email and Push may
// be nil. Backup settings with no bucket leave backups disabled.
type Options struct {
	DB             *sql.DB
	Issuer         *auth.Issuer
	Email          *email.Client
	Push           *push.Service
	Backup         backup.Config
	Metrics        *metrics.Metrics
	EventRateLimit int
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	issuer      *auth.Issuer
	metrics     *metrics.Metrics
	dispatcher  *push.Dispatcher
	backups     *backup.Manager
	userStore   *store.UserStore
	rateLimiter *middleware.RateLimiter
	eventLimit  int
	origins     []string

	pushH   *handler.PushHandler
	prefH   *handler.PreferenceHandler
	verifyH *handler.VerificationHandler
	notifH  *handler.NotificationHandler
	eventH  *handler.EventHandler
	healthH *handler.HealthHandler
	backupH *handler.BackupHandler

	logger *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	eventLimit := opts.EventRateLimit
	if eventLimit <= 0 {
		eventLimit = 60
	}

	hub := ws.NewHub(logger.With("component", "websocket"), m.WebsocketClients)

	userStore := store.NewUserStore(opts.DB)
	pushStore := store.NewPushStore(opts.DB)
	prefStore := store.NewPreferenceStore(opts.DB)
	notifStore := store.NewNotificationStore(opts.DB)
	sentStore := store.NewSentStore(opts.DB)

	// A nil *push.Service must not be stored in the Sender interface.
	var sender push.Sender
	if opts.Push.Enabled() {
		sender = opts.Push
	}
	var mailer push.Mailer
	var codeMailer handler.CodeMailer
	if opts.Email != nil && opts.Email.Configured() {
		mailer = opts.Email
		codeMailer = opts.Email
	}

	dispatcher := push.NewDispatcher(push.Stores{
		Notifications: notifStore,
		Preferences:   prefStore,
		Push:          pushStore,
		Sent:          sentStore,
	}, sender, mailer, hub, m, logger.With("component", "dispatcher"))

	backups := backup.NewManager(opts.Backup, opts.DB, func(st backup.Status) {
		switch st.State {
		case backup.StateIdle:
			m.Backups.WithLabelValues("success").Inc()
		case backup.StateError:
			m.Backups.WithLabelValues("failed").Inc()
		}
	}, logger.With("component", "backup"))

	return &Server{
		db:          opts.DB,
		hub:         hub,
		issuer:      opts.Issuer,
		metrics:     m,
		dispatcher:  dispatcher,
		backups:     backups,
		userStore:   userStore,
		rateLimiter: middleware.NewRateLimiter(),
		eventLimit:  eventLimit,
		origins:     opts.AllowedOrigins,
		pushH:       handler.NewPushHandler(pushStore, opts.Push, dispatcher, logger.With("component", "push_handler")),
		prefH:       handler.NewPreferenceHandler(prefStore, hub, logger.With("component", "preference")),
		verifyH:     handler.NewVerificationHandler(prefStore, codeMailer, m, logger.With("component", "verification")),
		notifH:      handler.NewNotificationHandler(notifStore, hub, logger.With("component", "notification")),
		eventH:      handler.NewEventHandler(dispatcher, userStore, logger.With("component", "event")),
		healthH:     handler.NewHealthHandler(opts.DB),
		backupH:     handler.NewBackupHandler(backups, logger.With("component", "backup_handler")),
		logger:      logger,
	}
}

// Dispatcher returns the notification dispatcher so main can run its
// cleanup loop.
func (s *Server) Dispatcher() *push.Dispatcher {
	return s.dispatcher
}

// Backups returns the backup manager so main can run its schedule.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// UserStore returns the user store for bootstrap tasks.
func (s *Server) UserStore() *store.UserStore {
	return s.userStore
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", s.healthH.Health)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.registerProtectedRoutes(mux)

	var h http.Handler = mux
	h = middleware.Instrument(s.metrics)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return h
}

// authed wraps a handler with bearer token authentication. Routes are
// wrapped one by one so the metrics middleware sees the matched pattern.
func (s *Server) authed(h http.Handler) http.Handler {
	return middleware.RequireAuth(s.issuer)(h)
}

func (s *Server) authedFunc(h http.HandlerFunc) http.Handler {
	return s.authed(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.authed(middleware.RequireAdmin(h))
}

func (s *Server) rateLimited(h http.Handler, limit int) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByUserOrIP, limit, time.Minute)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Push subscription routes
	mux.Handle("GET /api/push/vapid-key", s.authedFunc(s.pushH.GetVAPIDKey))
	mux.Handle("POST /api/push/subscription", s.authedFunc(s.pushH.SaveSubscription))
	mux.Handle("DELETE /api/push/subscription", s.authedFunc(s.pushH.RemoveSubscription))
	mux.Handle("GET /api/push/subscriptions", s.authedFunc(s.pushH.ListSubscriptions))
	mux.Handle("POST /api/push/test", s.authed(s.rateLimited(http.HandlerFunc(s.pushH.TestNotification), 5)))

	// Preference routes
	mux.Handle("GET /api/preferences", s.authedFunc(s.prefH.Get))
	mux.Handle("PUT /api/preferences", s.authedFunc(s.prefH.Update))
	mux.Handle("POST /api/verification/code", s.authed(s.rateLimited(http.HandlerFunc(s.verifyH.SendCode), 5)))

	// Notification inbox routes
	mux.Handle("GET /api/notifications", s.authedFunc(s.notifH.List))
	mux.Handle("GET /api/notifications/unread-count", s.authedFunc(s.notifH.UnreadCount))
	mux.Handle("PATCH /api/notifications/{id}/read", s.authedFunc(s.notifH.MarkRead))
	mux.Handle("PATCH /api/notifications/read-all", s.authedFunc(s.notifH.MarkAllRead))
	mux.Handle("DELETE /api/notifications/{id}", s.authedFunc(s.notifH.Delete))
	mux.Handle("DELETE /api/notifications/read", s.authedFunc(s.notifH.DeleteAllRead))

	// Event emission (admin only)
	mux.Handle("POST /api/events", s.authed(middleware.RequireAdmin(s.rateLimited(http.HandlerFunc(s.eventH.Emit), s.eventLimit))))

	// Backups (admin only)
	mux.Handle("POST /api/admin/backups", s.admin(s.backupH.Run))
	mux.Handle("GET /api/admin/backups", s.admin(s.backupH.List))
	mux.Handle("GET /api/admin/backups/status", s.admin(s.backupH.Status))

	// WebSocket
	mux.Handle("GET /ws", s.authed(ws.HandleWebSocket(s.hub, s.origins, s.logger.With("component", "websocket"))))
}
