package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/metrics"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// SecondPasswordPrompt asks the user for the second password.
type SecondPasswordPrompt interface {
	// RequestSecondPassword returns ok=false when the user cancels.
	RequestSecondPassword(ctx context.Context) (password string, ok bool, err error)
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Prompt  SecondPasswordPrompt
	Logger  LogWriter
	Metrics *metrics.Metrics
}

type stepFunc func(ctx context.Context, tx pending.Transaction) (pending.Transaction, error)

type job struct {
	ctx context.Context
	// refresh jobs (amount, fee level) preempt each other; the latest wins.
	refresh bool
	fn      stepFunc
	reply   chan reply
}

type reply struct {
	tx  pending.Transaction
	err error
}

type jobResult struct {
	gen uint64
	job job
	tx  pending.Transaction
	err error
}

// Session owns one pending transaction and serializes every engine call
// against it on a single goroutine.
//
// Amount and fee-level updates are last-write-wins: a newer update cancels
// the one in flight, whose caller receives ErrStaleUpdate. Other steps run in
// arrival order after pending updates. At most one Execute runs at a time.
type Session struct {
	engine  Engine
	prompt  SecondPasswordPrompt
	logger  LogWriter
	metrics *metrics.Metrics

	jobs    chan job
	results chan jobResult
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	latest    atomic.Pointer[pending.Transaction]
	executing atomic.Bool

	subsMu  sync.Mutex
	subs    map[int]chan pending.Transaction
	nextSub int

	// Owned by run.
	tx             pending.Transaction
	gen            uint64
	running        *job
	cancel         context.CancelFunc
	pendingRefresh *job
	queue          []job
}

// NewSession checks the engine inputs, initializes the transaction and
// starts the owner goroutine. Close must be called to release it.
func NewSession(ctx context.Context, eng Engine, opts SessionOptions) (*Session, error) {
	eng.AssertInputsValid()
	if eng.RequiresSecondPassword() {
		assert.NotNil("engine.session", opts.Prompt, "second password prompt is required", "route", eng.Route())
	}

	tx, err := eng.InitializeTransaction(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		engine:  eng,
		prompt:  opts.Prompt,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		jobs:    make(chan job),
		results: make(chan jobResult),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		subs:    make(map[int]chan pending.Transaction),
	}
	s.set(tx)
	go s.run()
	return s, nil
}

// Engine returns the engine driving the session.
func (s *Session) Engine() Engine { return s.engine }

// Snapshot returns the latest transaction.
func (s *Session) Snapshot() pending.Transaction {
	return *s.latest.Load()
}

// Subscribe returns a channel that always holds the latest transaction.
// Intermediate values may be skipped. The channel is closed with the session.
func (s *Session) Subscribe() (<-chan pending.Transaction, func()) {
	ch := make(chan pending.Transaction, 1)
	ch <- s.Snapshot()

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs == nil {
		close(ch)
	} else {
		s.subs[id] = ch
	}
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// UpdateAmount sets the amount. A newer update supersedes this one.
func (s *Session) UpdateAmount(ctx context.Context, amount money.Value) (pending.Transaction, error) {
	return s.do(ctx, true, func(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
		return s.engine.Update(ctx, amount, tx)
	})
}

// UpdateFeeLevel selects a fee level. A level the route does not offer
// panics in the caller's goroutine.
func (s *Session) UpdateFeeLevel(ctx context.Context, level fee.Level, custom *big.Int) (pending.Transaction, error) {
	s.Snapshot().FeeSelection.Select(level, custom)
	return s.do(ctx, true, func(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
		return s.engine.UpdateFeeLevel(ctx, tx, level, custom)
	})
}

// UpdateMemo sets the memo on routes that carry one.
func (s *Session) UpdateMemo(ctx context.Context, memo string) (pending.Transaction, error) {
	mc, ok := s.engine.(MemoCapable)
	if !ok {
		return s.Snapshot(), coreerr.Wrap(coreerr.ErrNotSupported, "memo on %s route", s.engine.Route())
	}
	return s.do(ctx, false, func(_ context.Context, tx pending.Transaction) (pending.Transaction, error) {
		return mc.UpdateMemo(tx, memo)
	})
}

// UpdateNote sets a local note. Notes never leave the device.
func (s *Session) UpdateNote(ctx context.Context, note string) (pending.Transaction, error) {
	return s.do(ctx, false, func(_ context.Context, tx pending.Transaction) (pending.Transaction, error) {
		return tx.WithNote(note), nil
	})
}

// BuildConfirmations fills the confirmation lines.
func (s *Session) BuildConfirmations(ctx context.Context) (pending.Transaction, error) {
	return s.do(ctx, false, s.engine.BuildConfirmations)
}

// Validate runs every validation step against the latest transaction.
func (s *Session) Validate(ctx context.Context) (pending.Transaction, error) {
	return s.do(ctx, false, s.engine.ValidateAll)
}

// Execute commits the transaction. A second Execute while one is running
// fails with ErrBusy. A cancelled second password prompt returns a Cancelled
// result and leaves the transaction validated for a retry.
func (s *Session) Execute(ctx context.Context) (Result, error) {
	if !s.executing.CompareAndSwap(false, true) {
		s.metrics.RecordExecution(s.engine.Route(), s.asset(), metrics.StatusBusy)
		return Result{}, coreerr.ErrBusy
	}
	defer s.executing.Store(false)

	tx, err := s.do(ctx, false, s.enterExecuting)
	if err != nil {
		return Result{}, err
	}
	// Later steps must record their outcome even if the caller goes away.
	bg := context.WithoutCancel(ctx)

	var password string
	if s.engine.RequiresSecondPassword() {
		pw, ok, err := s.prompt.RequestSecondPassword(ctx)
		if err == nil && !ok {
			err = coreerr.ErrCancelled
		}
		if err != nil {
			_, _ = s.do(bg, false, setPhase(pending.Validated))
			if errors.Is(err, coreerr.ErrCancelled) || errors.Is(err, context.Canceled) {
				s.metrics.RecordExecution(s.engine.Route(), s.asset(), metrics.StatusCancelled)
				return cancelled(tx.Amount), nil
			}
			return Result{}, err
		}
		password = pw
	}

	result, err := s.engine.Execute(ctx, tx, password)
	switch {
	case err != nil:
		_, _ = s.do(bg, false, func(_ context.Context, tx pending.Transaction) (pending.Transaction, error) {
			return tx.Failed(err), nil
		})
		s.metrics.RecordExecution(s.engine.Route(), s.asset(), metrics.StatusError)
		return Result{}, err
	case result.Kind == Cancelled:
		_, _ = s.do(bg, false, setPhase(pending.Validated))
		s.metrics.RecordExecution(s.engine.Route(), s.asset(), metrics.StatusCancelled)
		return result, nil
	}

	_, _ = s.do(bg, false, func(_ context.Context, tx pending.Transaction) (pending.Transaction, error) {
		return tx.Completed(result.TxHash), nil
	})
	s.metrics.RecordExecution(s.engine.Route(), s.asset(), metrics.StatusSuccess)

	if err := s.engine.PostExecute(bg, result); err != nil {
		s.logError("post-execute for %s: %v", result.TxHash, err)
	}
	return result, nil
}

// enterExecuting validates when needed and moves to the Executing phase.
func (s *Session) enterExecuting(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	if !tx.ReadyToExecute() {
		validated, err := s.engine.ValidateAll(ctx, tx)
		if err != nil {
			return tx, err
		}
		tx = validated
	}
	if !tx.ReadyToExecute() {
		return tx, coreerr.Wrap(tx.Validation.Err(), "cannot execute")
	}
	return tx.WithPhase(pending.Executing), nil
}

func setPhase(p pending.Phase) stepFunc {
	return func(_ context.Context, tx pending.Transaction) (pending.Transaction, error) {
		return tx.WithPhase(p), nil
	}
}

// Close stops the session and releases what the engine holds. Calls still
// waiting fail with ErrSessionClosed.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closing)
		<-s.done
	})
}

func (s *Session) do(ctx context.Context, refresh bool, fn stepFunc) (pending.Transaction, error) {
	j := job{ctx: ctx, refresh: refresh, fn: fn, reply: make(chan reply, 1)}
	select {
	case s.jobs <- j:
	case <-s.done:
		return s.Snapshot(), coreerr.ErrSessionClosed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
	select {
	case r := <-j.reply:
		return r.tx, r.err
	case <-s.done:
		return s.Snapshot(), coreerr.ErrSessionClosed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

func (s *Session) run() {
	for {
		select {
		case j := <-s.jobs:
			s.schedule(j)
		case r := <-s.results:
			s.finish(r)
		case <-s.closing:
			s.shutdown()
			return
		}
	}
}

func (s *Session) schedule(j job) {
	switch {
	case s.running == nil:
		s.start(j)
	case j.refresh && s.running.refresh:
		s.cancel()
		s.start(j)
	case j.refresh:
		if s.pendingRefresh != nil {
			s.stale(*s.pendingRefresh)
		}
		s.pendingRefresh = &j
	default:
		s.queue = append(s.queue, j)
	}
}

func (s *Session) start(j job) {
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(j.ctx)
	s.running, s.cancel = &j, cancel

	go func(base pending.Transaction) {
		tx, err := j.fn(ctx, base)
		cancel()
		select {
		case s.results <- jobResult{gen: gen, job: j, tx: tx, err: err}:
		case <-s.done:
		}
	}(s.tx)
}

func (s *Session) finish(r jobResult) {
	if r.gen != s.gen {
		s.stale(r.job)
		return
	}
	s.running, s.cancel = nil, nil
	if r.tx.ID == s.tx.ID {
		s.set(r.tx)
	}
	r.job.reply <- reply{tx: s.tx, err: r.err}

	switch {
	case s.pendingRefresh != nil:
		next := *s.pendingRefresh
		s.pendingRefresh = nil
		s.start(next)
	case len(s.queue) > 0:
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.start(next)
	}
}

func (s *Session) stale(j job) {
	s.metrics.RecordStaleUpdate()
	s.debug("discarding superseded update on %s", s.engine.Route())
	j.reply <- reply{tx: s.tx, err: coreerr.ErrStaleUpdate}
}

func (s *Session) shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.engine.Close(s.tx)
	close(s.done)

	s.subsMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subs = nil
	s.subsMu.Unlock()
}

// set stores tx as the latest value and publishes it to subscribers.
func (s *Session) set(tx pending.Transaction) {
	s.tx = tx
	s.latest.Store(&tx)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		// Only this goroutine sends, so after the drain the send cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- tx
	}
}

func (s *Session) asset() string {
	return s.engine.Source().Currency().Code
}

func (s *Session) debug(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(format, args...)
	}
}

func (s *Session) logError(format string, args ...any) {
	if s.logger != nil {
		s.logger.Error(format, args...)
	}
}
