package stationproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/auditlog"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/session"
)

// Default per-call timeouts.
const (
	DefaultReserveTimeout     = 180 * time.Second
	DefaultCancelTimeout      = 180 * time.Second
	DefaultRemoteStartTimeout = 120 * time.Second
	DefaultRemoteStopTimeout  = 180 * time.Second
	DefaultStatusTimeout      = 30 * time.Second
	DefaultWhitelistTimeout   = 180 * time.Second
	DefaultStatusInterval     = time.Minute
)

// Audit verbs written for every exchange.
const (
	VerbResponse       = "response"
	VerbTimeout        = "timeout"
	VerbTransportError = "transport-error"
)

var now = func() time.Time { return time.Now().UTC() }

// Config describes the remote charge point backend.
type Config struct {
	BaseURL    string
	Login      string
	Password   string
	AuthListID string
	SystemID   models.SystemID

	ReserveTimeout     time.Duration
	CancelTimeout      time.Duration
	RemoteStartTimeout time.Duration
	RemoteStopTimeout  time.Duration
	StatusTimeout      time.Duration
	StatusInterval     time.Duration
	// WhitelistTimeout bounds each whitelist load and each batch update.
	WhitelistTimeout time.Duration
}

func (c *Config) applyDefaults() {
	setDefault := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}
	setDefault(&c.ReserveTimeout, DefaultReserveTimeout)
	setDefault(&c.CancelTimeout, DefaultCancelTimeout)
	setDefault(&c.RemoteStartTimeout, DefaultRemoteStartTimeout)
	setDefault(&c.RemoteStopTimeout, DefaultRemoteStopTimeout)
	setDefault(&c.StatusTimeout, DefaultStatusTimeout)
	setDefault(&c.StatusInterval, DefaultStatusInterval)
	setDefault(&c.WhitelistTimeout, DefaultWhitelistTimeout)
	if c.AuthListID == "" {
		c.AuthListID = "default"
	}
}

// StatusApplier receives imported EVSE statuses.
type StatusApplier interface {
	SetEVSEStatus(id models.EVSEID, status models.EVSEStatus, ts time.Time) bool
}

// StatusPublisher fans imported statuses out to other systems.
type StatusPublisher interface {
	PublishEVSEStatus(ctx context.Context, id models.EVSEID, status models.EVSEStatus, ts time.Time) error
}

// Option customises a Proxy.
type Option func(*Proxy)

func WithAuditSink(sink auditlog.Sink) Option {
	return func(p *Proxy) { p.sink = sink }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Proxy) { p.logger = logger }
}

// WithDirectory sets the directory used to resolve locations of started sessions.
func WithDirectory(dir session.Directory) Option {
	return func(p *Proxy) { p.dir = dir }
}

func WithStatusApplier(a StatusApplier) Option {
	return func(p *Proxy) { p.statuses = a }
}

func WithStatusPublisher(pub StatusPublisher) Option {
	return func(p *Proxy) { p.publisher = pub }
}

// Proxy drives a remote charge point backend over HTTP.
type Proxy struct {
	cfg       Config
	client    *resty.Client
	sink      auditlog.Sink
	logger    *zap.Logger
	dir       session.Directory
	statuses  StatusApplier
	publisher StatusPublisher

	whitelistMu sync.Mutex
	whitelist   map[string]struct{}

	importing atomic.Bool
}

// New returns a proxy for the backend described by cfg.
func New(cfg Config, opts ...Option) (*Proxy, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("stationproxy: base url is required")
	}
	cfg.applyDefaults()

	p := &Proxy{
		cfg:       cfg,
		whitelist: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink = auditlog.Nop
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	p.client = resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetLogger(p.logger.Sugar())
	if cfg.Login != "" {
		p.client.SetBasicAuth(cfg.Login, cfg.Password)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Proxy) Config() Config { return p.cfg }

// failure classifies why no response arrived.
type failure int

const (
	failureTimeout failure = iota
	failureCancelled
	failureTransport
)

// exchange is one request and, unless err is set, its response.
type exchange struct {
	status      int
	body        []byte
	description string
	runtime     time.Duration
	err         error
	failure     failure
}

func (e *exchange) ok() bool {
	return e.err == nil && (e.status == http.StatusOK || e.status == http.StatusCreated || e.status == http.StatusNoContent)
}

// info is the raw response body attached to failed results.
func (e *exchange) info() any {
	if len(e.body) == 0 {
		return nil
	}
	return string(e.body)
}

type auditPayload struct {
	Method     string          `json:"method"`
	URL        string          `json:"url"`
	Request    json.RawMessage `json:"request,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
	Response   string          `json:"response,omitempty"`
	RuntimeMs  int64           `json:"runtimeMs"`
	TimeoutMs  int64           `json:"timeoutMs,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type call struct {
	op      string
	id      string
	method  string
	path    string
	query   map[string][]string
	body    any
	timeout time.Duration
}

// do performs c. Transport problems never escape as errors; they are
// reported on the returned exchange so callers can map them onto result tags.
func (p *Proxy) do(ctx context.Context, c call) *exchange {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := auditPayload{Method: c.method, URL: p.cfg.BaseURL + c.path}
	req := p.client.R().SetContext(reqCtx)
	if c.body != nil {
		data, err := json.Marshal(c.body)
		if err != nil {
			return &exchange{err: fmt.Errorf("stationproxy: encode %s request: %w", c.op, err), failure: failureTransport}
		}
		payload.Request = data
		req.SetHeader("Content-Type", "application/json").SetBody(data)
	}
	if len(c.query) > 0 {
		req.SetQueryParamsFromValues(c.query)
	}

	started := time.Now()
	resp, err := req.Execute(c.method, c.path)
	ex := &exchange{runtime: time.Since(started)}
	payload.RuntimeMs = ex.runtime.Milliseconds()

	if err != nil {
		ex.err = err
		ex.failure = classifyFailure(ctx, err)
		switch ex.failure {
		case failureTimeout:
			payload.TimeoutMs = c.timeout.Milliseconds()
			p.audit(ctx, VerbTimeout, c, payload)
			p.logger.Warn("remote call timed out", zap.String("op", c.op), zap.String("id", c.id), zap.Duration("timeout", c.timeout))
		default:
			payload.Error = err.Error()
			p.audit(ctx, VerbTransportError, c, payload)
			p.logger.Warn("remote call failed", zap.String("op", c.op), zap.String("id", c.id), zap.Error(err))
		}
		return ex
	}

	ex.status = resp.StatusCode()
	ex.body = resp.Body()
	ex.description = parseDescription(ex.body)
	payload.StatusCode = ex.status
	payload.Response = string(ex.body)
	p.audit(ctx, VerbResponse, c, payload)
	return ex
}

func (p *Proxy) audit(ctx context.Context, verb string, c call, payload auditPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("audit payload encoding failed", zap.String("op", c.op), zap.Error(err))
	}
	rec := auditlog.Record{
		Timestamp: now(),
		Store:     auditlog.StoreStationProxy,
		Verb:      verb,
		ID:        c.id,
		Tag:       c.op,
		Payload:   data,
	}
	// The audit record outlives a cancelled caller.
	if err := p.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warn("audit write failed", zap.String("op", c.op), zap.Error(err))
	}
}

func classifyFailure(parent context.Context, err error) failure {
	if errors.Is(parent.Err(), context.Canceled) {
		return failureCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTimeout
	}
	return failureTransport
}

func (e *exchange) transportMessage() string {
	if e.failure == failureCancelled {
		return "cancelled"
	}
	return e.err.Error()
}

// parseDescription extracts the optional description. Bodies that are not
// JSON objects yield an empty description.
func parseDescription(body []byte) string {
	var parsed struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Description)
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
