// Package gateway selects a music platform client by provider token and
// contains its failures: callers always get a lyric string or a candidate
// slice, possibly empty, and never an error.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"musicmanager/internal/logger"
	"musicmanager/internal/provider/kuwo"
	"musicmanager/internal/provider/migu"
	"musicmanager/internal/provider/placeholder"
	"musicmanager/internal/provider/qmusic"
	"musicmanager/internal/resource"
)

// ErrorKind classifies a contained provider failure.
type ErrorKind string

const (
	KindTimeout       ErrorKind = "timeout"
	KindCanceled      ErrorKind = "canceled"
	KindStatus        ErrorKind = "status"
	KindNetwork       ErrorKind = "network"
	KindDecode        ErrorKind = "decode"
	KindUnimplemented ErrorKind = "unimplemented"
	KindOther         ErrorKind = "other"
)

const (
	opLyric  = "fetch_lyric"
	opSearch = "fetch_id3_by_title"
)

// Gateway wraps one provider client for the lifetime of a request.
type Gateway struct {
	provider resource.Provider
	client   resource.Client
	log      *logger.Logger
	metrics  *Metrics
}

// Option configures a Gateway.
type Option func(*options)

type options struct {
	transportOpts []resource.TransportOption
	metrics       *Metrics
}

// WithRoundTripper routes the gateway's HTTP traffic through rt.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transportOpts = append(o.transportOpts, resource.WithRoundTripper(rt))
	}
}

// WithMetrics records call outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New creates a gateway with a fresh transport for provider p.
// It fails only for tokens outside the provider enumeration.
func New(p resource.Provider, log *logger.Logger, opts ...Option) (*Gateway, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log = log.With("provider", string(p))
	t := resource.NewTransport(o.transportOpts...)

	var client resource.Client
	switch p {
	case resource.Migu:
		client = migu.New(t)
	case resource.QMusic:
		client = qmusic.New(t, log)
	case resource.Kuwo:
		client = kuwo.New(t, log)
	case resource.SmartTag, resource.Netease, resource.Kugou, resource.AcoustID:
		client = placeholder.New(p)
	default:
		_, err := resource.ParseProvider(string(p))
		return nil, err
	}

	return &Gateway{
		provider: p,
		client:   client,
		log:      log.With("client", client.Name()),
		metrics:  o.metrics,
	}, nil
}

// Provider returns the token the gateway was built for.
func (g *Gateway) Provider() resource.Provider { return g.provider }

// FetchLyric returns the lyric for songID, or "" when the provider fails.
func (g *Gateway) FetchLyric(ctx context.Context, songID string) string {
	start := time.Now()
	lyric, err := g.client.FetchLyric(ctx, songID)
	g.observe(opLyric, start, err)
	if err != nil {
		return ""
	}
	return lyric
}

// FetchID3ByTitle returns search candidates for title, or an empty slice
// when the provider fails.
func (g *Gateway) FetchID3ByTitle(ctx context.Context, title string) []resource.TrackCandidate {
	start := time.Now()
	results, err := g.client.FetchID3ByTitle(ctx, title)
	g.observe(opSearch, start, err)
	if err != nil || results == nil {
		return []resource.TrackCandidate{}
	}
	return results
}

func (g *Gateway) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		kind := Classify(err)
		outcome = "error"
		l := g.log.With("operation", op, "kind", string(kind))
		if kind == KindUnimplemented {
			l.Debug("provider has no backend: %v", err)
		} else {
			l.Warn("provider call failed: %v", err)
		}
		if g.metrics != nil {
			g.metrics.ErrorsTotal.WithLabelValues(g.client.Name(), op, string(kind)).Inc()
		}
	}
	if g.metrics != nil {
		g.metrics.CallsTotal.WithLabelValues(g.client.Name(), op, outcome).Inc()
		g.metrics.CallDuration.WithLabelValues(g.client.Name(), op).Observe(time.Since(start).Seconds())
	}
}

// Classify maps a provider error to its kind.
func Classify(err error) ErrorKind {
	var statusErr *resource.StatusError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, resource.ErrNotImplemented):
		return KindUnimplemented
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &statusErr):
		return KindStatus
	case errors.Is(err, resource.ErrDecode):
		return KindDecode
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindOther
}
