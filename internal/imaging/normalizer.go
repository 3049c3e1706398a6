// Package imaging downsizes and recompresses user photos before they are
// embedded in a document or uploaded.
//
// Every entry point degrades instead of failing: local data that cannot be
// decoded comes back unchanged, and a remote photo that cannot be fetched in
// time comes back as nil. Callers render a nil photo as "no photo".
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"time"

	// Registered decoders for user uploads.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"frontdesk/pkg/platform/circuit"
)

// Purpose selects the width ceiling.
type Purpose int

const (
	// PurposeDocument is the copy uploaded to blob storage.
	PurposeDocument Purpose = iota
	// PurposeInline is the copy embedded in a label or receipt.
	PurposeInline
)

func (p Purpose) String() string {
	if p == PurposeInline {
		return "inline"
	}
	return "document"
}

// maxSourcePixels rejects decompression bombs before a full decode.
const maxSourcePixels = 60_000_000

var (
	ErrTooLarge = errors.New("image exceeds pixel budget")
	ErrTimeout  = errors.New("image normalization timed out")
)

// Options bounds the output.
type Options struct {
	DocumentMaxWidth int
	InlineMaxWidth   int
	Quality          int
	Timeout          time.Duration
}

// DefaultOptions mirrors the front-desk defaults: 1280px uploads, 480px
// inline copies, quality 75, 8s per image.
func DefaultOptions() Options {
	return Options{
		DocumentMaxWidth: 1280,
		InlineMaxWidth:   480,
		Quality:          75,
		Timeout:          8 * time.Second,
	}
}

// Normalizer re-encodes images as bounded JPEGs.
type Normalizer struct {
	opts    Options
	fetcher Fetcher
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Normalizer)

func WithFetcher(f Fetcher) Option {
	return func(n *Normalizer) { n.fetcher = f }
}

// WithBreaker gates remote fetches while the photo host keeps failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(n *Normalizer) { n.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(n *Normalizer) { n.metrics = m }
}

func New(opts Options, options ...Option) *Normalizer {
	def := DefaultOptions()
	if opts.DocumentMaxWidth <= 0 {
		opts.DocumentMaxWidth = def.DocumentMaxWidth
	}
	if opts.InlineMaxWidth <= 0 {
		opts.InlineMaxWidth = def.InlineMaxWidth
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	n := &Normalizer{opts: opts, logger: slog.Default()}
	for _, o := range options {
		o(n)
	}
	return n
}

func (n *Normalizer) maxWidth(p Purpose) int {
	if p == PurposeInline {
		return n.opts.InlineMaxWidth
	}
	return n.opts.DocumentMaxWidth
}

// Normalize decodes data, scales it down to the purpose's width ceiling and
// re-encodes it as JPEG on a white background.
func (n *Normalizer) Normalize(data []byte, purpose Purpose) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width*cfg.Height > maxSourcePixels {
		return nil, ErrTooLarge
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxW := n.maxWidth(purpose); width > maxW {
		height = max(1, height*maxW/width)
		width = maxW
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeLocal normalizes data held in memory within the time budget. Any
// failure returns the original bytes unchanged.
func (n *Normalizer) NormalizeLocal(ctx context.Context, data []byte, purpose Purpose) []byte {
	if len(data) == 0 {
		return nil
	}
	out, err := n.bounded(ctx, purpose, func(context.Context) ([]byte, error) {
		return n.Normalize(data, purpose)
	})
	if err != nil {
		n.logger.WarnContext(ctx, "image normalization failed, keeping original",
			"purpose", purpose.String(),
			"error", err,
		)
		n.metrics.incrementDegraded("local", purpose)
		return data
	}
	return out
}

// FetchNormalized downloads url and normalizes it within the time budget.
// A slow, failing or unreachable source yields nil, never an error.
func (n *Normalizer) FetchNormalized(ctx context.Context, url string, purpose Purpose) []byte {
	if url == "" {
		return nil
	}
	if n.fetcher == nil {
		n.logger.WarnContext(ctx, "no fetcher configured for remote image", "url", url)
		return nil
	}
	if n.breaker != nil && !n.breaker.Allow() {
		n.logger.WarnContext(ctx, "remote image fetch skipped, breaker open", "url", url)
		n.metrics.incrementDegraded("breaker_open", purpose)
		return nil
	}

	start := time.Now()
	out, err := n.bounded(ctx, purpose, func(fetchCtx context.Context) ([]byte, error) {
		raw, err := n.fetcher.Fetch(fetchCtx, url)
		if err != nil {
			return nil, err
		}
		return n.Normalize(raw, purpose)
	})
	n.metrics.observeFetch(time.Since(start))
	if err != nil {
		n.recordFetchFailure()
		n.logger.WarnContext(ctx, "remote image unavailable, rendering without it",
			"url", url,
			"purpose", purpose.String(),
			"error", err,
		)
		reason := "remote"
		if errors.Is(err, ErrTimeout) {
			reason = "timeout"
		}
		n.metrics.incrementDegraded(reason, purpose)
		return nil
	}
	if n.breaker != nil {
		n.breaker.RecordSuccess()
	}
	return out
}

func (n *Normalizer) recordFetchFailure() {
	if n.breaker == nil {
		return
	}
	if _, change := n.breaker.RecordFailure(); change.Opened {
		n.logger.Warn("remote image breaker opened")
	}
}

// bounded runs fn under the per-image deadline. On timeout the goroutine is
// abandoned; its result is discarded when it eventually returns.
func (n *Normalizer) bounded(ctx context.Context, purpose Purpose, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := fn(ctx)
		done <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s (%s)", ErrTimeout, n.opts.Timeout, purpose)
	case r := <-done:
		return r.data, r.err
	}
}
