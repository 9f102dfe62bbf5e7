package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/toricodesthings/understand-pdf/internal/config"
	"github.com/toricodesthings/understand-pdf/internal/convert"
	"github.com/toricodesthings/understand-pdf/internal/upload"
	"github.com/toricodesthings/understand-pdf/internal/view"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	cfg    config.Config
	logger *zap.Logger

	app        *view.App
	uploads    *upload.Store
	requestSem *semaphore.Weighted

	// Per-IP rate limiters, ip -> *clientLimiter
	limiters sync.Map

	metrics = &serverMetrics{}
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err = newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	setup()
	defer app.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.ConvertURL()),
			zap.Int64("maxConcurrent", cfg.MaxConcurrentRequests))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		cleanupRateLimiters(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

func setup() {
	requestSem = semaphore.NewWeighted(cfg.MaxConcurrentRequests)
	uploads = upload.NewStore(cfg.UploadDir, cfg.MaxUploadBytes, logger)
	client := convert.NewClient(cfg.ConvertURL(), cfg.RequestTimeout, cfg.MaxResponseBytes, logger)
	app = view.NewApp(client, view.Options{
		RequestTimeout: cfg.RequestTimeout,
		RevealInterval: cfg.RevealInterval,
		Logger:         logger,
	})
}

func routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", handleMetrics)

	mux.HandleFunc("/", withMethod("GET", handleIndex))
	mux.HandleFunc("/state", withMethod("GET", handleState))

	mux.HandleFunc("/submit",
		withRateLimit(
			withMethod("POST",
				withConcurrencyLimit(handleSubmit))))

	mux.HandleFunc("/page",
		withRateLimit(
			withMethod("POST",
				withConcurrencyLimit(handlePage))))

	mux.HandleFunc("/window/next",
		withRateLimit(
			withMethod("POST", handleNextWindow)))

	return withLogging(withRecovery(mux))
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zc.Level = lvl
	return zc.Build()
}

func cleanupRateLimiters(ctx context.Context) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := metrics.get()
		logger.Info("stats",
			zap.Int64("active", active),
			zap.Int64("total", total),
			zap.Int("goroutines", runtime.NumGoroutine()),
			zap.Uint64("memMB", m.Alloc/(1<<20)))

		if n := evictIdleLimiters(time.Now().Add(-interval)); n > 0 {
			logger.Debug("evicted idle rate limiters", zap.Int("count", n))
		}
	}
}

// evictIdleLimiters drops limiters not used since cutoff. Active clients keep
// their bucket.
func evictIdleLimiters(cutoff time.Time) int {
	evicted := 0
	limiters.Range(func(k, v any) bool {
		if v.(*clientLimiter).lastSeen.Load() < cutoff.UnixNano() {
			if limiters.CompareAndDelete(k, v) {
				evicted++
			}
		}
		return true
	})
	return evicted
}

// ---------- Handlers ----------

func handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := metrics.get()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"active":  active,
		"backend": cfg.BackendURL,
		"version": "1.0.0",
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeErr(w, http.StatusNotFound, "not_found", "Not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := view.Render(w, app.Snapshot(), cfg.RevealInterval); err != nil {
		logger.Error("render failed", zap.Error(err))
	}
}

func handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, app.Snapshot())
}

func handleSubmit(w http.ResponseWriter, r *http.Request) {
	in, err := readSubmitForm(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	if in.city != nil {
		app.SetCity(*in.city)
	}
	if in.country != nil {
		app.SetCountry(*in.country)
	}
	if in.file != nil {
		app.SetFile(*in.file)
	}

	// The dispatch outlives this request; the browser follows the result by
	// polling /state.
	app.SubmitAsync(context.Background())
	respond(w, r)
}

func handlePage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	if err := r.ParseForm(); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("page")))
	if err != nil || n < 1 {
		writeErr(w, http.StatusBadRequest, "validation_failed", "page must be a positive integer")
		return
	}

	app.SelectPageAsync(context.Background(), n)
	respond(w, r)
}

func handleNextWindow(w http.ResponseWriter, r *http.Request) {
	app.NextWindow()
	respond(w, r)
}

type submitForm struct {
	file    *upload.SelectedFile
	city    *string
	country *string
}

// readSubmitForm streams the multipart body so the PDF goes straight to the
// upload store instead of through ParseMultipartForm's own spool.
func readSubmitForm(w http.ResponseWriter, r *http.Request) (submitForm, error) {
	var out submitForm
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+(1<<20))

	mr, err := r.MultipartReader()
	if err != nil {
		return out, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			discardFile(&out)
			return submitForm{}, err
		}

		switch part.FormName() {
		case "pdf":
			if part.FileName() == "" {
				break
			}
			f, err := uploads.Save(part, part.FileName())
			if err != nil {
				_ = part.Close()
				discardFile(&out)
				return submitForm{}, err
			}
			if f.Size == 0 {
				f.Cleanup()
				break
			}
			discardFile(&out)
			out.file = &f
		case "city":
			v, err := readField(part)
			if err != nil {
				discardFile(&out)
				return submitForm{}, err
			}
			out.city = &v
		case "country":
			v, err := readField(part)
			if err != nil {
				discardFile(&out)
				return submitForm{}, err
			}
			out.country = &v
		}
		_ = part.Close()
	}
}

func readField(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func discardFile(f *submitForm) {
	if f.file != nil {
		f.file.Cleanup()
		f.file = nil
	}
}

// respond answers form posts with a redirect back to the screen and API
// callers with the current snapshot.
func respond(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusAccepted, app.Snapshot())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

func withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requestSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer requestSem.Release(1)

		metrics.incActive()
		defer metrics.decActive()

		next(w, r)
	}
}

func withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := getRateLimiter(ip)

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", zap.Any("error", err), zap.String("path", sanitizeLogString(r.URL.Path)))
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		// the reveal poller hits /state every tick
		if r.URL.Path == "/state" {
			logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path),
				zap.Int("status", ww.status), zap.Duration("took", time.Since(start)))
			return
		}
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", sanitizeLogString(r.URL.Path)),
			zap.Int("status", ww.status),
			zap.Duration("took", time.Since(start)))
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

func getRateLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := limiters.Load(ip); ok {
		cl := v.(*clientLimiter)
		cl.lastSeen.Store(now)
		return cl.limiter
	}

	every := cfg.RateLimitEvery
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 50
	}

	cl := &clientLimiter{limiter: rate.NewLimiter(rate.Every(every), burst)}
	cl.lastSeen.Store(now)
	v, _ := limiters.LoadOrStore(ip, cl)
	return v.(*clientLimiter).limiter
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	return truncate(msg, 300)
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	return truncate(s, 200)
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
