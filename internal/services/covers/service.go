// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/raygan/mam-audiofinder-sub001/internal/services/audiobookshelf"
)

const (
	thumbDirName = "covers"

	DefaultMaxRetries = 2
	MaxRetriesCap     = 5

	defaultMaxJitter = 500 * time.Millisecond
	defaultBaseDelay = time.Second
	defaultCacheTTL  = 30 * time.Minute
	failureCooldown  = 5 * time.Minute
	fetchTimeout     = 15 * time.Second
	flightTimeout    = 2 * time.Minute
	thumbnailSize    = 256
)

var (
	// ErrRetryExhausted is reported when every attempt failed.
	ErrRetryExhausted = errors.New("cover fetch retries exhausted")
	// ErrNoCover is reported when the library has no cover for the item.
	ErrNoCover = errors.New("no cover found")
)

// Library is the catalog covers are looked up in.
type Library interface {
	Configured() bool
	Search(ctx context.Context, title, author string) ([]audiobookshelf.Item, error)
	CoverURL(itemID string) string
	FetchCover(ctx context.Context, itemID string) ([]byte, string, error)
}

// Recorder receives cover fetch metrics.
type Recorder interface {
	ObserveCoverAttempt()
	ObserveCoverResult(outcome string)
}

// Request asks for the cover of one visible item. A nil MaxRetries uses the default.
type Request struct {
	ItemKey    string `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	MaxRetries *int   `json:"max_retries,omitempty"`
}

// Result never carries a Go error. Failures degrade to an Error string the UI
// renders as a placeholder.
type Result struct {
	ItemKey  string  `json:"id,omitempty"`
	CoverURL *string `json:"cover_url,omitempty"`
	ItemID   *string `json:"item_id,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type Options struct {
	DataDir    string
	MaxRetries int
	MaxJitter  time.Duration
	BaseDelay  time.Duration
	CacheTTL   time.Duration
}

// Service fetches covers per visible item with jitter, backoff and caching.
type Service struct {
	library  Library
	opts     Options
	thumbDir string
	recorder Recorder

	group     singleflight.Group
	flightsMu sync.Mutex
	flights   map[string]*flight
	results   *ttlcache.Cache[string, Result]
	failures *ttlcache.Cache[string, string]

	random       func(max time.Duration) time.Duration
	observeDelay func(attempt uint, d time.Duration)
}

// flight is one shared lookup chain. It runs detached from any single caller
// and is cancelled once every waiter has left.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Flow overview:
//   * the UI calls Fetch (or Visible for a batch) only for items on screen.
//   * a random start jitter spreads out bursts of simultaneously visible items.
//   * attempts are retried with exponential backoff plus jitter. Concurrent
//     requests for the same item share one attempt chain, which outlives any
//     caller that leaves early and stops when the last one leaves.
//   * successes are cached; failures enter a cooldown so scrolling back and
//     forth does not hammer the library.
//   * Thumbnail downloads, normalises and atomically stores a PNG on disk.

func NewService(library Library, opts Options) (*Service, error) {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxJitter <= 0 {
		opts.MaxJitter = defaultMaxJitter
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	svc := &Service{
		library:  library,
		opts:     opts,
		results:  ttlcache.New(ttlcache.Options[string, Result]{}.SetDefaultTTL(opts.CacheTTL)),
		failures: ttlcache.New(ttlcache.Options[string, string]{}.SetDefaultTTL(failureCooldown)),
		flights:  make(map[string]*flight),
		random:   randomDuration,
	}

	if strings.TrimSpace(opts.DataDir) != "" {
		svc.thumbDir = filepath.Join(opts.DataDir, thumbDirName)
		if err := os.MkdirAll(svc.thumbDir, 0o755); err != nil {
			return nil, fmt.Errorf("create cover directory: %w", err)
		}
	}

	return svc, nil
}

func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Fetch returns the cover for one item. It never fails; see Result.
func (s *Service) Fetch(ctx context.Context, req Request) Result {
	key := itemKey(req)
	if key == "" {
		return s.finish(req.ItemKey, "invalid", Result{Error: "title or id is required"})
	}

	if cached, ok := s.results.Get(key); ok {
		cached.ItemKey = req.ItemKey
		return cached
	}
	if msg, ok := s.failures.Get(key); ok {
		return s.finish(req.ItemKey, "cooldown", Result{Error: msg})
	}
	if s.library == nil || !s.library.Configured() {
		return s.finish(req.ItemKey, "not_configured", Result{Error: audiobookshelf.ErrNotConfigured.Error()})
	}

	maxRetries := s.opts.MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	maxRetries = min(max(maxRetries, 0), MaxRetriesCap)

	ch, leave := s.join(ctx, key, req, maxRetries)
	defer leave()

	select {
	case res := <-ch:
		if res.Err != nil {
			msg := res.Err.Error()
			if isContextErr(res.Err) {
				return s.finish(req.ItemKey, "cancelled", Result{Error: msg})
			}
			s.failures.Set(key, msg, ttlcache.DefaultTTL)
			outcome := "failed"
			if errors.Is(res.Err, ErrNoCover) {
				outcome = "no_cover"
			}
			return s.finish(req.ItemKey, outcome, Result{Error: msg})
		}
		result, _ := res.Val.(Result)
		s.results.Set(key, result, ttlcache.DefaultTTL)
		result.ItemKey = req.ItemKey
		return s.finish(req.ItemKey, "found", result)
	case <-ctx.Done():
		return s.finish(req.ItemKey, "cancelled", Result{Error: ctx.Err().Error()})
	}
}

// join registers the caller on the flight for key, starting one if needed.
// The returned func must be called when the caller stops waiting.
func (s *Service) join(ctx context.Context, key string, req Request, maxRetries int) (<-chan singleflight.Result, func()) {
	s.flightsMu.Lock()
	defer s.flightsMu.Unlock()

	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++

	ch := s.group.DoChan(key, func() (any, error) {
		defer s.land(key, f)
		return s.fetchWithRetry(f.ctx, req, maxRetries)
	})
	return ch, func() { s.leave(key, f) }
}

func (s *Service) land(key string, f *flight) {
	s.flightsMu.Lock()
	defer s.flightsMu.Unlock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
}

func (s *Service) leave(key string, f *flight) {
	s.flightsMu.Lock()
	defer s.flightsMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		// nobody is left to read the result; the next caller starts over
		delete(s.flights, key)
		s.group.Forget(key)
	}
}

// Visible starts one independent fetch per item and streams results in completion order.
// The channel is closed after the last result.
func (s *Service) Visible(ctx context.Context, reqs []Request) <-chan Result {
	out := make(chan Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		g.Go(func() error {
			out <- s.Fetch(gctx, req)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(out)
	}()
	return out
}

func (s *Service) fetchWithRetry(ctx context.Context, req Request, maxRetries int) (Result, error) {
	if err := sleep(ctx, s.random(s.opts.MaxJitter)); err != nil {
		return Result{}, err
	}

	var result Result
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			if s.recorder != nil {
				s.recorder.ObserveCoverAttempt()
			}
			r, err := s.attempt(ctx, req)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries+1)),
		retry.LastErrorOnly(true),
		retry.DelayType(s.backoff),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Str("title", req.Title).Uint("attempt", n+1).Msg("Cover fetch attempt failed")
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if errors.Is(err, ErrNoCover) || errors.Is(err, audiobookshelf.ErrNotConfigured) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, attempts, err)
	}
	return result, nil
}

// backoff waits 2^n * base plus up to half of that again, n being the 0-based failed attempt.
func (s *Service) backoff(n uint, _ error, _ *retry.Config) time.Duration {
	base := s.opts.BaseDelay << n
	d := base + s.random(base/2)
	if s.observeDelay != nil {
		s.observeDelay(n, d)
	}
	return d
}

func (s *Service) attempt(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	items, err := s.library.Search(ctx, req.Title, req.Author)
	if err != nil {
		if errors.Is(err, audiobookshelf.ErrNotConfigured) {
			return Result{}, retry.Unrecoverable(err)
		}
		return Result{}, err
	}
	for _, it := range items {
		if !it.HasCover {
			continue
		}
		coverURL := s.library.CoverURL(it.ID)
		itemID := it.ID
		return Result{CoverURL: &coverURL, ItemID: &itemID}, nil
	}
	return Result{}, retry.Unrecoverable(ErrNoCover)
}

func (s *Service) finish(key, outcome string, r Result) Result {
	r.ItemKey = key
	if s.recorder != nil {
		s.recorder.ObserveCoverResult(outcome)
	}
	return r
}

func itemKey(req Request) string {
	if k := strings.TrimSpace(req.ItemKey); k != "" {
		return k
	}
	title := strings.ToLower(strings.TrimSpace(req.Title))
	if title == "" {
		return ""
	}
	return title + "|" + strings.ToLower(strings.TrimSpace(req.Author))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
