// Package api serves the HTTP surface: REST routes for accounts,
// channels, guide, library, and indexers, sync triggers, and the SSE
// and WebSocket push endpoints.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nkkko/telecast/internal/api/errors"
	"github.com/nkkko/telecast/internal/api/models"
	"github.com/nkkko/telecast/internal/bus"
	"github.com/nkkko/telecast/internal/channels"
	"github.com/nkkko/telecast/internal/guide"
	"github.com/nkkko/telecast/internal/indexer"
	"github.com/nkkko/telecast/internal/library"
	"github.com/nkkko/telecast/internal/metadata"
	"github.com/nkkko/telecast/internal/store"
	"github.com/nkkko/telecast/internal/stream"
	"github.com/nkkko/telecast/internal/syncer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Request body limit in bytes
	BodyLimit int

	// Connection deadlines. fasthttp applies WriteTimeout to the whole
	// response, so it must stay zero for event streams to outlive it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Bus categories push endpoints bind when the client names none
	StreamCategories []string

	// Prometheus exposition route
	MetricsEnabled bool
	MetricsPath    string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		BodyLimit:        1024 * 1024, // 1MB
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     0,
		IdleTimeout:      120 * time.Second,
		StreamCategories: []string{"channels", "guide"},
		MetricsEnabled:   true,
		MetricsPath:      "/metrics",
	}
}

// API handles HTTP endpoints
type API struct {
	config   Config
	app      *fiber.App
	store    store.Store
	channels *channels.Service
	guide    *guide.Service
	library  *library.Service
	metadata *metadata.Service
	indexers *indexer.Service
	streams  *stream.Factory
	events   *bus.Bus
	syncers  map[string]*syncer.Runner
	logger   zerolog.Logger
}

// NewAPI creates a new API instance. The syncers map is keyed by
// resource name and backs the POST /api/sync/<resource> routes.
func NewAPI(
	config Config,
	st store.Store,
	channelSvc *channels.Service,
	guideSvc *guide.Service,
	librarySvc *library.Service,
	metadataSvc *metadata.Service,
	indexerSvc *indexer.Service,
	streams *stream.Factory,
	events *bus.Bus,
	syncers map[string]*syncer.Runner,
) *API {
	logger := log.With().Str("component", "api").Logger()

	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.BodyLimit <= 0 {
		config.BodyLimit = DefaultConfig().BodyLimit
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if len(config.StreamCategories) == 0 {
		config.StreamCategories = DefaultConfig().StreamCategories
	}
	if config.MetricsPath == "" {
		config.MetricsPath = DefaultConfig().MetricsPath
	}

	return &API{
		config:   config,
		store:    st,
		channels: channelSvc,
		guide:    guideSvc,
		library:  librarySvc,
		metadata: metadataSvc,
		indexers: indexerSvc,
		streams:  streams,
		events:   events,
		syncers:  syncers,
		logger:   logger,
	}
}

// serverConfig builds the fasthttp server settings. fasthttp enforces
// the write deadline across an entire streamed response, so a non-zero
// WriteTimeout would sever every event stream when it expires.
func (a *API) serverConfig() fiber.Config {
	return fiber.Config{
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
		BodyLimit:    a.config.BodyLimit,
	}
}

// Start initializes and runs the API server
func (a *API) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.config.Addr).Msg("Starting API server")

	app := fiber.New(a.serverConfig())

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Register routes
	a.registerRoutes(app)

	// Store app reference
	a.app = app

	// Start server
	go func() {
		if err := app.Listen(a.config.Addr); err != nil {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()
	return nil
}

// registerRoutes sets up all API endpoints
func (a *API) registerRoutes(app *fiber.App) {
	// Health checks
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	// Metrics endpoint
	if a.config.MetricsEnabled {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(a.config.MetricsPath, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	// Account endpoints
	app.Post("/api/accounts", a.handleCreateAccount)
	app.Get("/api/accounts", a.handleListAccounts)
	app.Get("/api/accounts/:id", a.handleGetAccount)
	app.Patch("/api/accounts/:id", a.handleUpdateAccount)
	app.Delete("/api/accounts/:id", a.handleDeleteAccount)
	app.Get("/api/accounts/:id/channels", a.handleAccountChannels)

	// Channel endpoints
	app.Get("/api/channels", a.handleListChannels)
	app.Get("/api/channels/groups", a.handleListGroups)

	// Guide endpoints
	app.Get("/api/guide/:epgChannelId", a.handleGuide)
	app.Get("/api/guide/:epgChannelId/now", a.handleGuideNowNext)

	// Sync triggers
	app.Post("/api/sync/:resource", a.handleSync)

	// Library endpoints
	app.Get("/api/library", a.handleLibraryBrowse)
	app.Get("/api/library/info", a.handleLibraryInfo)

	// Indexer endpoints
	app.Get("/api/indexers", a.handleListIndexers)
	app.Get("/api/indexers/:id", a.handleGetIndexer)
	app.Post("/api/indexers/reload", a.handleReloadIndexers)

	// Push endpoints
	app.Get("/api/events", a.handleEvents)

	app.Use("/api/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/stream", websocket.New(a.handleStreamSocket))
}

// handleCreateAccount registers a provider account
func (a *API) handleCreateAccount(c *fiber.Ctx) error {
	var req models.CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return a.respondError(c, errors.ValidationError("invalid_body", "Invalid request body"))
	}

	if err := req.Validate(); err != nil {
		return a.respondError(c, err)
	}

	account := req.ToModel()
	account.ID = uuid.NewString()

	if err := a.store.CreateAccount(c.Context(), account); err != nil {
		a.logger.Error().Err(err).Msg("Failed to create account")
		return a.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(models.SanitizeAccount(*account))
}

// handleListAccounts lists every registered account
func (a *API) handleListAccounts(c *fiber.Ctx) error {
	accounts, err := a.store.ListAccounts(c.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list accounts")
		return a.respondError(c, err)
	}

	return c.JSON(models.AccountListResponse{
		Accounts: models.SanitizeAccounts(accounts),
	})
}

// handleGetAccount retrieves an account by ID
func (a *API) handleGetAccount(c *fiber.Ctx) error {
	account, err := a.store.GetAccount(c.Context(), c.Params("id"))
	if err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(models.SanitizeAccount(*account))
}

// handleUpdateAccount applies a partial account update
func (a *API) handleUpdateAccount(c *fiber.Ctx) error {
	var req models.UpdateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return a.respondError(c, errors.ValidationError("invalid_body", "Invalid request body"))
	}

	if err := req.Validate(); err != nil {
		return a.respondError(c, err)
	}

	account, err := a.store.GetAccount(c.Context(), c.Params("id"))
	if err != nil {
		return a.respondError(c, err)
	}

	req.Apply(account)

	if err := a.store.UpdateAccount(c.Context(), account); err != nil {
		a.logger.Error().Err(err).Str("id", account.ID).Msg("Failed to update account")
		return a.respondError(c, err)
	}

	return c.JSON(models.SanitizeAccount(*account))
}

// handleDeleteAccount removes an account and its synced data
func (a *API) handleDeleteAccount(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := a.store.DeleteAccount(c.Context(), id); err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"deleted": true,
	})
}

// handleAccountChannels lists one account's channels
func (a *API) handleAccountChannels(c *fiber.Ctx) error {
	list, err := a.channels.List(c.Context(), c.Params("id"))
	if err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(models.ChannelListResponse{Channels: list})
}

// handleListChannels lists channels across accounts, optionally
// filtered by group
func (a *API) handleListChannels(c *fiber.Ctx) error {
	list, err := a.channels.ListAll(c.Context(), c.Query("group"))
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list channels")
		return a.respondError(c, err)
	}

	return c.JSON(models.ChannelListResponse{Channels: list})
}

// handleListGroups lists the distinct channel groups
func (a *API) handleListGroups(c *fiber.Ctx) error {
	groups, err := a.channels.Groups(c.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list channel groups")
		return a.respondError(c, err)
	}

	return c.JSON(models.GroupListResponse{Groups: groups})
}

// handleGuide returns guide entries for one EPG channel, optionally
// windowed by from/to (RFC 3339)
func (a *API) handleGuide(c *fiber.Ctx) error {
	epgChannelID := c.Params("epgChannelId")

	from, err := parseTimeQuery(c.Query("from"))
	if err != nil {
		return a.respondError(c, errors.ValidationError("invalid_from", "from must be RFC 3339"))
	}

	to, err := parseTimeQuery(c.Query("to"))
	if err != nil {
		return a.respondError(c, errors.ValidationError("invalid_to", "to must be RFC 3339"))
	}

	entries, err := a.guide.Entries(c.Context(), epgChannelID, from, to)
	if err != nil {
		a.logger.Error().Err(err).Str("epg_channel_id", epgChannelID).Msg("Failed to list guide")
		return a.respondError(c, err)
	}

	return c.JSON(models.GuideResponse{
		EpgChannelID: epgChannelID,
		Entries:      entries,
	})
}

// handleGuideNowNext returns the running and upcoming programme for one
// EPG channel
func (a *API) handleGuideNowNext(c *fiber.Ctx) error {
	epgChannelID := c.Params("epgChannelId")

	current, next, err := a.guide.NowNext(c.Context(), epgChannelID, time.Now().UTC())
	if err != nil {
		a.logger.Error().Err(err).Str("epg_channel_id", epgChannelID).Msg("Failed to resolve now/next")
		return a.respondError(c, err)
	}

	return c.JSON(models.NowNextResponse{
		EpgChannelID: epgChannelID,
		Now:          current,
		Next:         next,
	})
}

// handleSync triggers a sync run for one resource. The optional body
// names explicit account ids; without it the run covers every enabled
// account.
func (a *API) handleSync(c *fiber.Ctx) error {
	resource := c.Params("resource")

	runner, ok := a.syncers[resource]
	if !ok {
		return a.respondError(c, errors.NotFoundError("unknown_resource", "No sync runner for resource"))
	}

	var req models.SyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return a.respondError(c, errors.ValidationError("invalid_body", "Invalid request body"))
		}
	}

	results, err := runner.Run(c.Context(), req.AccountIDs)
	if err != nil {
		a.logger.Error().Err(err).Str("resource", resource).Msg("Sync run failed")
		return c.Status(fiber.StatusInternalServerError).JSON(models.SyncResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	return c.JSON(models.SyncResponse{
		Success: true,
		Results: results,
	})
}

// handleLibraryBrowse lists one library directory
func (a *API) handleLibraryBrowse(c *fiber.Ctx) error {
	dir := c.Query("path")

	entries, err := a.library.Browse(c.Context(), dir)
	if err != nil {
		return a.respondError(c, err)
	}

	return c.JSON(models.LibraryResponse{
		Path:    dir,
		Entries: entries,
	})
}

// handleLibraryInfo describes one library file and attaches looked-up
// metadata for video files when a metadata backend is configured
func (a *API) handleLibraryInfo(c *fiber.Ctx) error {
	entry, err := a.library.Info(c.Context(), c.Query("path"))
	if err != nil {
		return a.respondError(c, err)
	}

	resp := models.LibraryInfoResponse{Entry: entry}
	if !entry.Dir {
		resp.Title, resp.Year = library.ParseTitleYear(entry.Name)

		if entry.Kind == "video" && a.metadata.Enabled() {
			media, err := a.metadata.Lookup(c.Context(), resp.Title, resp.Year)
			if err != nil {
				a.logger.Warn().Err(err).Str("title", resp.Title).Msg("Metadata lookup failed")
			} else {
				resp.Media = media
			}
		}
	}

	return c.JSON(resp)
}

// handleListIndexers lists the loaded indexer definitions
func (a *API) handleListIndexers(c *fiber.Ctx) error {
	return c.JSON(models.IndexerListResponse{
		Indexers: a.indexers.List(c.Context()),
	})
}

// handleGetIndexer retrieves one indexer definition by id
func (a *API) handleGetIndexer(c *fiber.Ctx) error {
	def, ok := a.indexers.Get(c.Context(), c.Params("id"))
	if !ok {
		return a.respondError(c, errors.NotFoundError("unknown_indexer", "Indexer not found"))
	}

	return c.JSON(def)
}

// handleReloadIndexers re-reads the definitions directory
func (a *API) handleReloadIndexers(c *fiber.Ctx) error {
	loaded, err := a.indexers.Load(c.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to reload indexers")
		return a.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"loaded": loaded,
	})
}

// handleEvents serves the SSE push endpoint
func (a *API) handleEvents(c *fiber.Ctx) error {
	categories := parseCategories(c.Query("categories"), a.config.StreamCategories)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	s := a.streams.Open(a.bindStream(categories))
	a.logger.Debug().
		Str("stream_id", s.ID()).
		Strs("categories", categories).
		Msg("SSE client connected")

	ctx := c.Context()
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		s.Serve(w, ctx.Done())
	})

	return nil
}

// wsFrame is the JSON framing of one pushed event on the WebSocket
// transport
type wsFrame struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// handleStreamSocket serves the WebSocket push endpoint
func (a *API) handleStreamSocket(conn *websocket.Conn) {
	categories := parseCategories(conn.Query("categories"), a.config.StreamCategories)

	s := a.streams.Open(a.bindStream(categories))
	defer s.Close()

	a.logger.Debug().
		Str("stream_id", s.ID()).
		Strs("categories", categories).
		Msg("WebSocket client connected")

	// The read loop only detects disconnects; inbound frames are ignored
	go func() {
		defer s.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case f := <-s.Frames():
			frame := wsFrame{
				Event:     f.Event,
				Data:      f.Data,
				Timestamp: time.Now().UTC(),
			}
			if err := conn.WriteJSON(frame); err != nil {
				a.logger.Debug().Err(err).Str("stream_id", s.ID()).Msg("WebSocket write failed")
				return
			}
		case <-s.Done():
			return
		}
	}
}

// bindStream wires a new stream to the requested bus categories. The
// cleanup unsubscribes every handle exactly once.
func (a *API) bindStream(categories []string) stream.SetupFunc {
	return func(snd stream.Sender) func() {
		subs := make([]bus.Subscription, 0, len(categories))
		for _, category := range categories {
			subs = append(subs, a.events.Subscribe(category, func(ev bus.Event) {
				snd.Send(ev.Name, ev.Payload)
			}))
		}

		return func() {
			for _, sub := range subs {
				a.events.Unsubscribe(sub)
			}
		}
	}
}

// respondError maps an error to its wire representation
func (a *API) respondError(c *fiber.Ctx, err error) error {
	var apiErr *errors.APIError
	switch {
	case stderrors.As(err, &apiErr):
	case stderrors.Is(err, store.ErrNotFound):
		apiErr = errors.NotFoundError("not_found", "Resource not found")
	case stderrors.Is(err, library.ErrInvalidPath):
		apiErr = errors.ValidationError("invalid_path", "Path is outside the library")
	case stderrors.Is(err, fs.ErrNotExist):
		apiErr = errors.NotFoundError("not_found", "No such library entry")
	default:
		apiErr = errors.InternalError("internal_error", err.Error())
	}

	return c.Status(apiErr.HTTPCode).JSON(apiErr)
}

// parseTimeQuery parses an optional RFC 3339 query value
func parseTimeQuery(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// parseCategories splits a comma-separated category list, falling back
// to the configured defaults when the client names none
func parseCategories(raw string, defaults []string) []string {
	var categories []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			categories = append(categories, part)
		}
	}

	if len(categories) == 0 {
		categories = append(categories, defaults...)
	}
	return categories
}

// Shutdown stops the API server
func (a *API) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down API server")
	if a.app != nil {
		return a.app.Shutdown()
	}
	return nil
}
