package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/toricodesthings/understand-pdf/internal/convert"
	"github.com/toricodesthings/understand-pdf/internal/upload"
	"go.uber.org/zap"
)

var (
	// ErrSuperseded is returned by a dispatch whose result was discarded
	// because a newer dispatch was issued while it was in flight.
	ErrSuperseded = errors.New("superseded by a newer request")
	ErrClosed     = errors.New("view closed")
)

// Converter posts one page request to the extraction backend.
type Converter interface {
	Convert(ctx context.Context, req convert.Request) (convert.Result, error)
}

type Options struct {
	RequestTimeout time.Duration
	RevealInterval time.Duration
	NewTicker      TickerFunc
	Logger         *zap.Logger
}

// App holds the state of the screen and runs every backend dispatch. The
// result shown always belongs to the most recently issued dispatch.
type App struct {
	conv           Converter
	requestTimeout time.Duration
	logger         *zap.Logger

	reveal *Revealer
	pager  *Pager

	mu          sync.Mutex
	file        *upload.SelectedFile
	city        string
	country     string
	output      string
	totalPages  int
	currentPage int
	loading     bool
	errMsg      *string
	seq         uint64
	cancel      context.CancelFunc
	closed      bool
}

func NewApp(conv Converter, opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &App{
		conv:           conv,
		requestTimeout: timeout,
		logger:         logger,
		reveal:         NewRevealer(opts.RevealInterval, opts.NewTicker),
		pager:          NewPager(),
		currentPage:    1,
	}
}

// SetFile replaces the selected upload. The previous file is removed from
// disk and the page-button window goes back to the first set.
func (a *App) SetFile(f upload.SelectedFile) {
	a.mu.Lock()
	prev := a.file
	a.file = &f
	a.mu.Unlock()

	if prev != nil && prev.TempDir != f.TempDir {
		prev.Cleanup()
	}
	a.pager.Reset()
}

func (a *App) SetCity(v string) {
	a.mu.Lock()
	a.city = v
	a.mu.Unlock()
}

func (a *App) SetCountry(v string) {
	a.mu.Lock()
	a.country = v
	a.mu.Unlock()
}

// Submit requests the page the user was last viewing for the current inputs
// and waits for the outcome.
func (a *App) Submit(ctx context.Context) error {
	return <-a.SubmitAsync(ctx)
}

// SelectPage moves to page n and requests it. The stored file is uploaded
// again; earlier pages are not cached.
func (a *App) SelectPage(ctx context.Context, n int) error {
	return <-a.SelectPageAsync(ctx, n)
}

// SubmitAsync issues the dispatch before returning, so state already reports
// loading, and delivers the outcome on the returned channel.
func (a *App) SubmitAsync(ctx context.Context) <-chan error {
	return a.dispatch(ctx, 0)
}

func (a *App) SelectPageAsync(ctx context.Context, n int) <-chan error {
	if n < 1 {
		n = 1
	}
	return a.dispatch(ctx, n)
}

// NextWindow advances the page-button window.
func (a *App) NextWindow() bool {
	a.mu.Lock()
	total := a.totalPages
	a.mu.Unlock()
	return a.pager.Next(total)
}

// Close cancels any in-flight dispatch, stops the reveal and removes the
// uploaded file.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.seq++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.loading = false
	file := a.file
	a.file = nil
	a.mu.Unlock()

	a.reveal.Stop()
	if file != nil {
		file.Cleanup()
	}
}

func (a *App) dispatch(ctx context.Context, page int) <-chan error {
	errc := make(chan error, 1)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		errc <- ErrClosed
		return errc
	}
	if page > 0 {
		a.currentPage = page
	}
	a.seq++
	seq := a.seq
	if a.cancel != nil {
		a.cancel()
	}
	reqCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	a.cancel = cancel
	a.loading = true

	req, buildErr := a.buildRequestLocked()
	a.mu.Unlock()

	a.logger.Info("dispatch",
		zap.Uint64("seq", seq),
		zap.Int("page", req.CurrentPage),
		zap.Bool("withFile", req.File != nil))

	go func() {
		defer cancel()
		start := time.Now()
		var (
			res convert.Result
			err = buildErr
		)
		if err == nil {
			res, err = a.conv.Convert(reqCtx, req)
		}
		errc <- a.apply(seq, res, err, time.Since(start))
	}()
	return errc
}

func (a *App) buildRequestLocked() (convert.Request, error) {
	req := convert.Request{City: a.city, Country: a.country, CurrentPage: a.currentPage}
	if a.file == nil {
		return req, nil
	}
	b, err := a.file.ReadAll()
	if err != nil {
		return req, err
	}
	req.File = &convert.File{Name: a.file.Name, Content: b, MIMEType: a.file.MIMEType}
	return req, nil
}

func (a *App) apply(seq uint64, res convert.Result, err error, took time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq != a.seq {
		a.logger.Debug("discarding stale response",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", a.seq),
			zap.Error(err))
		return ErrSuperseded
	}

	a.loading = false
	a.cancel = nil

	if err != nil {
		msg := bannerMessage(err)
		a.output = ""
		a.errMsg = &msg
		a.reveal.Stop()
		a.logger.Warn("dispatch failed",
			zap.Uint64("seq", seq),
			zap.String("kind", convert.Kind(err)),
			zap.Duration("took", took),
			zap.Error(err))
		return err
	}

	a.errMsg = nil
	a.output = res.Output
	a.totalPages = res.TotalPages
	a.reveal.Restart(res.Output)
	a.logger.Info("dispatch succeeded",
		zap.Uint64("seq", seq),
		zap.Int("totalPages", res.TotalPages),
		zap.Int("chars", len(res.Output)),
		zap.Duration("took", took))
	return nil
}

func bannerMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "request failed"
	}
	n := 0
	for i := range msg {
		if n == 300 {
			return msg[:i] + "..."
		}
		n++
	}
	return msg
}
