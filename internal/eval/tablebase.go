package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// TablebaseClient probes a Lichess-style standard tablebase endpoint
// (GET {endpoint}?fen=...). Positions with at most seven pieces resolve to
// perfect-play evaluations; anything larger comes back category "unknown".
type TablebaseClient struct {
	endpoint string
	http     *fasthttp.Client
	logger   *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type TablebaseOption func(*TablebaseClient)

func WithTimeout(d time.Duration) TablebaseOption {
	return func(c *TablebaseClient) { c.defaultTimeout = d }
}

func WithRetry(max int) TablebaseOption {
	return func(c *TablebaseClient) { c.retryMax = max }
}

func WithMaxConnsPerHost(n int) TablebaseOption {
	return func(c *TablebaseClient) { c.http.MaxConnsPerHost = n }
}

func WithLogger(logger *zap.Logger) TablebaseOption {
	return func(c *TablebaseClient) { c.logger = logger }
}

func NewTablebaseClient(endpoint string, opts ...TablebaseOption) *TablebaseClient {
	c := &TablebaseClient{
		endpoint:       strings.TrimRight(endpoint, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tablebaseResponse mirrors the Lichess standard endpoint payload.
type tablebaseResponse struct {
	Category   string          `json:"category"`
	DTZ        int             `json:"dtz"`
	PreciseDTZ *int            `json:"precise_dtz"`
	Checkmate  bool            `json:"checkmate"`
	Stalemate  bool            `json:"stalemate"`
	Moves      []tablebaseMove `json:"moves"`
}

type tablebaseMove struct {
	UCI      string `json:"uci"`
	SAN      string `json:"san"`
	Category string `json:"category"`
	DTZ      int    `json:"dtz"`
	Zeroing  bool   `json:"zeroing"`
}

func (c *TablebaseClient) Analyze(ctx context.Context, fen string, _ Config) (Evaluation, error) {
	payload, err := c.probe(ctx, fen)
	if err != nil {
		return Evaluation{}, err
	}

	wdl, known := CategoryToWDL(payload.Category)
	if !known {
		// Too many pieces for the tablebase; report an empty verdict rather
		// than guessing.
		return Evaluation{}, nil
	}

	dtz := payload.DTZ
	precise := false
	if payload.PreciseDTZ != nil {
		dtz = *payload.PreciseDTZ
		precise = true
	}

	return Evaluation{
		Score: WDLToScore(wdl, dtz),
		Tablebase: Tablebase{
			Available: true,
			WDL:       wdl,
			DTZ:       dtz,
			Category:  wdl.Category(),
			Precise:   precise,
		},
	}, nil
}

// BestMove returns the endpoint's top-ranked move. The move list arrives
// sorted best-first for the side to move.
func (c *TablebaseClient) BestMove(ctx context.Context, fen string) (string, error) {
	payload, err := c.probe(ctx, fen)
	if err != nil {
		return "", err
	}
	if len(payload.Moves) == 0 {
		return "", ErrNoBestMove
	}
	move := strings.ToLower(strings.TrimSpace(payload.Moves[0].UCI))
	if move == "" {
		return "", ErrNoBestMove
	}
	return move, nil
}

func (c *TablebaseClient) probe(ctx context.Context, fen string) (*tablebaseResponse, error) {
	// Lichess accepts underscore-separated FENs, sparing a query escape.
	url := c.endpoint + "?fen=" + strings.ReplaceAll(strings.TrimSpace(fen), " ", "_")

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(url)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			lastErr = fmt.Errorf("tablebase request failed: %w", err)
			if attempt == attempts {
				return nil, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("tablebase error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if attempt == attempts || !shouldRetryStatus(status) {
				return nil, lastErr
			}
			c.logger.Debug("tablebase_retry", zap.Int("status", status), zap.Int("attempt", attempt))
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		payload := &tablebaseResponse{}
		if err := json.Unmarshal(resp.Body(), payload); err != nil {
			return nil, fmt.Errorf("decode tablebase response: %w", err)
		}
		return payload, nil
	}

	if lastErr == nil {
		lastErr = errors.New("tablebase probe failed")
	}
	return nil, lastErr
}

func (c *TablebaseClient) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
