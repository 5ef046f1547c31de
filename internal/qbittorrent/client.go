// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	qbt "github.com/autobrr/go-qbittorrent"
	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raygan/mam-audiofinder-sub001/internal/services/layout"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/matcher"
)

// ErrTorrentNotFound is returned when no torrent has the requested hash.
var ErrTorrentNotFound = errors.New("torrent not found")

const (
	defaultTimeoutSeconds = 30
	filesCacheTTL         = 30 * time.Second
	maxConcurrentFetches  = 4
	loginAttempts         = 3
)

// API is the subset of the qBittorrent Web API the client needs.
type API interface {
	LoginCtx(ctx context.Context) error
	GetTorrentsCtx(ctx context.Context, o qbt.TorrentFilterOptions) ([]qbt.Torrent, error)
	GetFilesInformationCtx(ctx context.Context, hash string) (*qbt.TorrentFiles, error)
}

type Config struct {
	Host           string
	Username       string
	Password       string
	Category       string
	TimeoutSeconds int
}

// Client turns torrents from qBittorrent into import candidates.
type Client struct {
	api      API
	category string

	loginMu  sync.Mutex
	loggedIn bool

	files *ttlcache.Cache[string, []layout.FileEntry]
}

func NewClient(cfg Config) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	api := qbt.NewClient(qbt.Config{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  timeout,
	})
	return NewClientWithAPI(api, cfg.Category)
}

// NewClientWithAPI builds a client on top of an existing API implementation.
func NewClientWithAPI(api API, category string) *Client {
	return &Client{
		api:      api,
		category: strings.TrimSpace(category),
		files:    ttlcache.New(ttlcache.Options[string, []layout.FileEntry]{}.SetDefaultTTL(filesCacheTTL)),
	}
}

func (c *Client) login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn {
		return nil
	}

	err := retry.Do(
		func() error { return c.api.LoginCtx(ctx) },
		retry.Context(ctx),
		retry.Attempts(loginAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("qBittorrent login failed, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("qbittorrent login: %w", err)
	}
	c.loggedIn = true
	return nil
}

// ListCandidates returns every torrent in the configured category.
func (c *Client) ListCandidates(ctx context.Context) ([]matcher.Candidate, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}
	torrents, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: c.category})
	if err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}

	candidates := make([]matcher.Candidate, len(torrents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, t := range torrents {
		g.Go(func() error {
			files, err := c.GetFiles(gctx, t.Hash)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Warn().Err(err).Str("hash", t.Hash).Msg("Failed to fetch torrent files, listing without layout")
			}
			candidates[i] = toCandidate(t, files)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// GetCandidate returns the torrent with the given hash.
func (c *Client) GetCandidate(ctx context.Context, hash string) (*matcher.Candidate, error) {
	t, err := c.torrent(ctx, hash)
	if err != nil {
		return nil, err
	}
	files, err := c.GetFiles(ctx, t.Hash)
	if err != nil {
		return nil, err
	}
	candidate := toCandidate(*t, files)
	return &candidate, nil
}

// GetFiles returns the normalised file listing of a torrent. Listings are cached briefly.
func (c *Client) GetFiles(ctx context.Context, hash string) ([]layout.FileEntry, error) {
	key := strings.ToLower(strings.TrimSpace(hash))
	if key == "" {
		return nil, ErrTorrentNotFound
	}
	if cached, ok := c.files.Get(key); ok {
		return cached, nil
	}
	if err := c.login(ctx); err != nil {
		return nil, err
	}

	files, err := c.api.GetFilesInformationCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch torrent files %s: %w", hash, err)
	}
	if files == nil || len(*files) == 0 {
		return nil, fmt.Errorf("%w: %s has no files", ErrTorrentNotFound, hash)
	}

	entries := make([]layout.FileEntry, 0, len(*files))
	for _, f := range *files {
		entries = append(entries, layout.FileEntry{Path: layout.NormalizePath(f.Name), Size: f.Size})
	}
	c.files.Set(key, entries, ttlcache.DefaultTTL)
	return entries, nil
}

func (c *Client) torrent(ctx context.Context, hash string) (*qbt.Torrent, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, ErrTorrentNotFound
	}
	if err := c.login(ctx); err != nil {
		return nil, err
	}
	torrents, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{strings.ToLower(hash)}})
	if err != nil {
		return nil, fmt.Errorf("get torrent %s: %w", hash, err)
	}
	for i := range torrents {
		if strings.EqualFold(torrents[i].Hash, hash) {
			return &torrents[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTorrentNotFound, hash)
}

func toCandidate(t qbt.Torrent, files []layout.FileEntry) matcher.Candidate {
	c := matcher.Candidate{
		Hash:        t.Hash,
		Name:        t.Name,
		ContentPath: t.ContentPath,
		SavePath:    t.SavePath,
		MamID:       matcher.MamIDFromTags(t.Tags),
		Category:    t.Category,
		State:       string(t.State),
		Progress:    t.Progress,
		Incomplete:  !IsComplete(t.State, t.Progress),
	}
	if len(files) > 0 {
		c.SingleFile = layout.Detect(files).SingleFile
		c.Root = layout.CommonRoot(files)
	}
	return c
}
