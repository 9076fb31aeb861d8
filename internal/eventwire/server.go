package eventwire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Endgame-Trainer/internal/msgcat"
	trainersvc "github.com/park285/Cheese-Endgame-Trainer/internal/service/trainer"
	coretrainer "github.com/park285/Cheese-Endgame-Trainer/internal/trainer"
	"github.com/park285/Cheese-Endgame-Trainer/pkg/trainerdto"
)

const (
	egressQueueSize = 32
	writeTimeout    = 5 * time.Second
	pingInterval    = 30 * time.Second
	pingTimeout     = 3 * time.Second
	commandTimeout  = 30 * time.Second
)

var (
	errUnknownOp  = errors.New("unknown op")
	errBadRequest = errors.New("bad request")
)

// Server upgrades HTTP requests to WebSocket connections, dispatches inbound
// command frames to the trainer service and pushes session events to every
// connection bound to the owning trainee.
type Server struct {
	svc      *trainersvc.Service
	messages *msgcat.Catalog
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[*conn]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type conn struct {
	ws     *websocket.Conn
	remote string
	egress chan *Frame

	keyMu sync.RWMutex
	key   string
}

func (c *conn) bind(key string) {
	c.keyMu.Lock()
	c.key = key
	c.keyMu.Unlock()
}

func (c *conn) boundTo(key string) bool {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.key != "" && c.key == key
}

// enqueue hands a frame to the write loop. Slow consumers lose frames rather
// than stalling the session goroutines.
func (c *conn) enqueue(logger *zap.Logger, f *Frame) {
	select {
	case c.egress <- f:
	default:
		logger.Warn("egress_queue_full",
			zap.String("remote", c.remote),
			zap.String("frame_type", f.Type))
	}
}

func NewServer(svc *trainersvc.Service, messages *msgcat.Catalog, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:      svc,
		messages: messages,
		logger:   logger,
		conns:    make(map[*conn]struct{}),
		stopCh:   make(chan struct{}),
	}
	svc.SetEventSink(s.fanOut)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}
	if s.stopping() {
		_ = ws.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	c := &conn{
		ws:     ws,
		remote: r.RemoteAddr,
		egress: make(chan *Frame, egressQueueSize),
	}
	s.addConn(c)
	defer s.removeConn(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writeLoop(ctx, c)
		cancel()
	}()
	go func() {
		defer s.wg.Done()
		s.pingLoop(ctx, c, cancel)
	}()

	s.logger.Debug("ws_connected", zap.String("remote", c.remote))
	s.readLoop(ctx, c)
	_ = ws.Close(websocket.StatusNormalClosure, "bye")
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		var cmd Command
		if err := wsjson.Read(ctx, c.ws, &cmd); err != nil {
			if ctx.Err() == nil && !s.stopping() {
				s.logger.Debug("ws_read_closed",
					zap.Error(err),
					zap.String("remote", c.remote))
			}
			return
		}
		s.handle(ctx, c, cmd)
	}
}

func (s *Server) handle(ctx context.Context, c *conn, cmd Command) {
	if strings.TrimSpace(cmd.Trainee) == "" {
		c.enqueue(s.logger, s.errorFrame(cmd, fmt.Errorf("%w: trainee is required", errBadRequest)))
		return
	}
	meta := trainerdto.RequestMeta{SessionID: cmd.Session, Trainee: cmd.Trainee}
	c.bind(trainersvc.TraineeKey(meta))

	opCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	frame, err := s.dispatch(opCtx, meta, cmd)
	cancel()
	if err != nil {
		c.enqueue(s.logger, s.errorFrame(cmd, err))
		return
	}
	frame.Type = FrameResponse
	frame.Op = cmd.Op
	frame.Seq = cmd.Seq
	c.enqueue(s.logger, frame)
}

func (s *Server) dispatch(ctx context.Context, meta trainerdto.RequestMeta, cmd Command) (*Frame, error) {
	switch cmd.Op {
	case OpStartDrill:
		resp, err := s.svc.StartDrill(ctx, meta, cmd.Drill)
		if err != nil {
			return nil, err
		}
		return &Frame{State: resp.State, Resumed: resp.Resumed}, nil
	case OpMakeMove:
		summary, err := s.svc.Play(ctx, meta, cmd.Move)
		if err != nil {
			return nil, err
		}
		return &Frame{Move: summary, State: summary.State}, nil
	case OpGetState:
		state, err := s.svc.Status(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{State: state}, nil
	case OpUndo:
		state, err := s.svc.Undo(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{State: state}, nil
	case OpRedo:
		state, err := s.svc.Redo(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{State: state}, nil
	case OpJumpTo:
		if cmd.Index == nil {
			return nil, fmt.Errorf("%w: index is required", errBadRequest)
		}
		state, err := s.svc.JumpTo(ctx, meta, *cmd.Index)
		if err != nil {
			return nil, err
		}
		return &Frame{State: state}, nil
	case OpReset:
		state, err := s.svc.Reset(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{State: state}, nil
	case OpDismissMistake:
		state, err := s.svc.DismissMistake(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{State: state}, nil
	case OpHint:
		hint, err := s.svc.Hint(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{Hint: hint}, nil
	case OpResign:
		state, err := s.svc.Resign(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{State: state}, nil
	case OpListDrills:
		drills, err := s.svc.Drills(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{Drills: drills}, nil
	case OpHistory:
		runs, err := s.svc.RecentRuns(ctx, meta, cmd.Limit)
		if err != nil {
			return nil, err
		}
		return &Frame{Runs: runs}, nil
	case OpProfile:
		profile, err := s.svc.Profile(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Frame{Profile: profile}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownOp, cmd.Op)
	}
}

func (s *Server) writeLoop(ctx context.Context, c *conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case f := <-c.egress:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, f)
			cancel()
			if err != nil {
				if ctx.Err() == nil && !s.stopping() {
					s.logger.Debug("ws_write_failed",
						zap.Error(err),
						zap.String("remote", c.remote))
				}
				return
			}
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, c *conn, cancel context.CancelFunc) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
			err := c.ws.Ping(pctx)
			pcancel()
			if err != nil {
				failures++
				if failures >= 2 {
					s.logger.Debug("ws_ping_failed", zap.String("remote", c.remote))
					cancel()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// fanOut pushes one session event to every connection bound to the trainee.
func (s *Server) fanOut(traineeKey string, ev coretrainer.Event) {
	frame := &Frame{Type: FrameEvent, Event: eventFrameOf(ev)}
	s.mu.RLock()
	for c := range s.conns {
		if c.boundTo(traineeKey) {
			c.enqueue(s.logger, frame)
		}
	}
	s.mu.RUnlock()
}

func (s *Server) addConn(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Close detaches from the service, closes every connection and waits for the
// per-connection loops to unwind.
func (s *Server) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.svc.SetEventSink(nil)

	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[*conn]struct{})
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Server) errorFrame(cmd Command, err error) *Frame {
	de := s.domainError(cmd, err)
	return &Frame{Type: FrameError, Op: cmd.Op, Seq: cmd.Seq, Error: &de}
}

// domainError translates service sentinels into wire error codes with the
// catalog's user-facing text.
func (s *Server) domainError(cmd Command, err error) trainerdto.DomainError {
	render := func(key string, data map[string]any) string {
		return s.messages.RenderOr(key, data, err.Error())
	}
	switch {
	case errors.Is(err, trainersvc.ErrInvalidMove):
		return trainerdto.DomainError{
			Code:    "illegal_move",
			Message: render("error.illegal_move", map[string]any{"Move": cmd.Move}),
		}
	case errors.Is(err, trainersvc.ErrSessionNotFound):
		return trainerdto.DomainError{Code: "no_session", Message: render("error.no_session", nil)}
	case errors.Is(err, trainersvc.ErrSessionFinished):
		return trainerdto.DomainError{Code: "session_over", Message: render("error.session_over", nil)}
	case errors.Is(err, trainersvc.ErrUnknownDrill):
		return trainerdto.DomainError{
			Code:    "unknown_drill",
			Message: render("error.unknown_drill", map[string]any{"Token": cmd.Drill}),
		}
	case errors.Is(err, trainersvc.ErrProfileNotFound):
		return trainerdto.DomainError{Code: "no_profile", Message: err.Error()}
	case errors.Is(err, trainersvc.ErrUndoNotAvailable):
		return trainerdto.DomainError{Code: "undo_unavailable", Message: err.Error()}
	case errors.Is(err, trainersvc.ErrRedoNotAvailable):
		return trainerdto.DomainError{Code: "redo_unavailable", Message: err.Error()}
	case errors.Is(err, trainersvc.ErrInvalidJumpIndex):
		return trainerdto.DomainError{Code: "bad_index", Message: err.Error()}
	case errors.Is(err, trainersvc.ErrHintUnavailable):
		return trainerdto.DomainError{Code: "hint_unavailable", Message: err.Error()}
	case errors.Is(err, trainersvc.ErrEvalTimeout):
		return trainerdto.DomainError{
			Code:      "eval_timeout",
			Message:   render("error.eval_failed", nil),
			Retryable: true,
		}
	case errors.Is(err, trainersvc.ErrEvalUnavailable):
		return trainerdto.DomainError{
			Code:      "eval_failed",
			Message:   render("error.eval_failed", nil),
			Retryable: true,
		}
	case errors.Is(err, errUnknownOp):
		return trainerdto.DomainError{Code: "unknown_op", Message: err.Error()}
	case errors.Is(err, errBadRequest):
		return trainerdto.DomainError{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return trainerdto.DomainError{Code: "timeout", Message: err.Error(), Retryable: true}
	default:
		return trainerdto.DomainError{Code: "internal", Message: err.Error()}
	}
}
