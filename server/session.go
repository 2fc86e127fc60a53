package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/pkg/citations"
	"github.com/xhad/readmit/pkg/pipeline"
)

const (
	stateIdle int32 = iota
	stateProcessing
)

// SummaryData accompanies a summary message.
type SummaryData struct {
	Term      string            `json:"term"`
	Citations []models.Citation `json:"citations"`
}

// DoneData accompanies the done message that ends a run.
type DoneData struct {
	RunID     string            `json:"run_id"`
	Downloads Downloads         `json:"downloads"`
	Citations []citations.Entry `json:"citations"`
	Processed []string          `json:"processed"`
	Failed    []string          `json:"failed"`
}

type Downloads struct {
	Abstracts string `json:"abstracts"`
	Deck      string `json:"deck"`
}

// session is one websocket connection. It runs at most one generation at
// a time; triggers received while processing are answered with busy.
type session struct {
	server *WSServer
	conn   *websocket.Conn
	state  atomic.Int32
	mu     sync.Mutex // serializes writes to conn
	wg     sync.WaitGroup
}

func newSession(server *WSServer, conn *websocket.Conn) *session {
	return &session{server: server, conn: conn}
}

func (s *session) handle(ctx context.Context, msg Message) {
	if msg.Type != MsgGenerate {
		s.send(MsgError, fmt.Sprintf("unknown message type %q", msg.Type), nil)
		return
	}
	if !s.state.CompareAndSwap(stateIdle, stateProcessing) {
		s.send(MsgBusy, "A run is already in progress", nil)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.finish(s.generate(ctx, msg.Content))
	}()
}

func (s *session) wait() { s.wg.Wait() }

// generate runs the pipeline for input and returns the message that ends
// the run, or nil when the connection has gone away.
func (s *session) generate(ctx context.Context, input string) *Message {
	terms := pipeline.ParseTerms(input)
	if len(terms) == 0 {
		return &Message{Type: MsgError, Content: "Please enter at least one search term"}
	}

	cfg := s.server.config
	logger := s.server.logger

	runID, err := cfg.Store.NewRun()
	if err != nil {
		logger.Error("failed to allocate run", "error", err)
		return &Message{Type: MsgError, Content: "Could not prepare output files"}
	}
	logger = logger.With("run", runID)

	start := time.Now()
	report, memory, err := s.execute(ctx, runID, terms)
	if cfg.Metrics != nil {
		cfg.Metrics.RunFinished(time.Since(start), err)
	}
	if err != nil {
		if rmErr := cfg.Store.Remove(runID); rmErr != nil {
			logger.Warn("failed to remove run", "error", rmErr)
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("run cancelled")
			return nil
		}
		logger.Error("run failed", "error", err)
		return &Message{Type: MsgError, Content: fmt.Sprintf("Run failed: %v", err)}
	}

	failed := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		failed = append(failed, f.Term)
	}

	return &Message{Type: MsgDone, Content: "All done!", Data: DoneData{
		RunID: runID,
		Downloads: Downloads{
			Abstracts: s.server.downloadPath(runID, cfg.AbstractsFile),
			Deck:      s.server.downloadPath(runID, cfg.DeckFile),
		},
		Citations: memory.Entries(),
		Processed: report.Processed(),
		Failed:    failed,
	}}
}

func (s *session) execute(ctx context.Context, runID string, terms []string) (*pipeline.Report, *citations.Memory, error) {
	cfg := s.server.config

	abstracts, err := cfg.Store.Create(runID, cfg.AbstractsFile)
	if err != nil {
		return nil, nil, err
	}
	defer abstracts.Close()

	deck, err := cfg.Store.Create(runID, cfg.DeckFile)
	if err != nil {
		return nil, nil, err
	}
	defer deck.Close()

	var observer pipeline.Observer = pipeline.ObserverFunc(s.observe)
	if cfg.Metrics != nil {
		observer = pipeline.Observers(observer, cfg.Metrics)
	}

	p, err := pipeline.New(pipeline.Config{
		Retriever:     cfg.Retriever,
		Summarizer:    cfg.Summarizer,
		Normalizer:    cfg.Normalizer,
		Observer:      observer,
		Logger:        s.server.logger.With("run", runID),
		OverviewTitle: cfg.OverviewTitle,
	})
	if err != nil {
		return nil, nil, err
	}

	memory := citations.NewMemory()
	report, err := p.Run(ctx, terms, memory, pipeline.Outputs{
		Abstracts: abstracts,
		Deck:      deck,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := closeAll(abstracts, deck); err != nil {
		return nil, nil, err
	}
	return report, memory, nil
}

func (s *session) observe(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventSummary:
		s.send(MsgSummary, e.Summary, SummaryData{Term: e.Term, Citations: e.Citations})
	case pipeline.EventTermFailed:
		s.send(MsgError, e.Message, nil)
	default:
		s.send(MsgStatus, e.Message, nil)
	}
}

func (s *session) send(msgType, content string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(Message{Type: msgType, Content: content, Data: data})
}

// finish returns the session to idle and sends the final message while
// holding the write lock. The state is idle before the client sees it.
func (s *session) finish(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(stateIdle)
	if msg != nil {
		s.write(*msg)
	}
}

func (s *session) write(msg Message) {
	if err := s.conn.WriteJSON(msg); err != nil {
		s.server.logger.Debug("error sending message", "type", msg.Type, "error", err)
	}
}

func closeAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
