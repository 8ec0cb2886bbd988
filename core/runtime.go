package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"seaescrow/core/events"
	"seaescrow/core/state"
	"seaescrow/core/types"
	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/native/token"
	"seaescrow/observability/metrics"
	"seaescrow/storage"
)

// recordTimeout bounds the audit write that follows every instruction.
const recordTimeout = 5 * time.Second

// ReceiptRecorder persists receipts of executed instructions.
type ReceiptRecorder interface {
	Record(ctx context.Context, receipt *types.Receipt) error
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithEmitter forwards committed events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Runtime) {
		if emitter != nil {
			r.emitter = emitter
		}
	}
}

// WithRecorder stores a receipt for every executed instruction, failed ones
// included.
func WithRecorder(recorder ReceiptRecorder) Option {
	return func(r *Runtime) { r.recorder = recorder }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.EscrowMetrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithMeterProvider exports the instruction counter through mp instead of
// the global OpenTelemetry provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Runtime) {
		if mp != nil {
			r.meters = mp
		}
	}
}

// WithClock overrides the time source used for receipts.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLockStripes sets the number of account lock stripes.
func WithLockStripes(n int) Option {
	return func(r *Runtime) { r.locks = newAccountLocks(n) }
}

// Runtime executes signed instructions. Each instruction runs against its own
// state journal while holding the locks of every account it names, so
// instructions on different orders proceed in parallel and instructions on
// the same order are serialized. A handler error discards the journal.
type Runtime struct {
	db             storage.Database
	programID      crypto.Address
	tokenProgramID crypto.Address

	locks    *accountLocks
	emitter  events.Emitter
	recorder ReceiptRecorder
	logger   *slog.Logger
	metrics  *metrics.EscrowMetrics
	tracer   trace.Tracer
	meters   metric.MeterProvider
	executed metric.Int64Counter
	now      func() time.Time
}

// NewRuntime builds a runtime over db. programID is the escrow program
// identity; a zero tokenProgramID selects token.DefaultProgramID.
func NewRuntime(db storage.Database, programID, tokenProgramID crypto.Address, opts ...Option) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	if programID.IsZero() {
		return nil, ErrProgramIDRequired
	}
	if tokenProgramID.IsZero() {
		tokenProgramID = token.DefaultProgramID
	}
	r := &Runtime{
		db:             db,
		programID:      programID,
		tokenProgramID: tokenProgramID,
		locks:          newAccountLocks(defaultLockStripes),
		emitter:        events.NoopEmitter{},
		logger:         slog.Default(),
		tracer:         otel.Tracer("seaescrow/core"),
		meters:         otel.GetMeterProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	executed, err := r.meters.Meter("seaescrow/core").Int64Counter("seaescrow.instructions",
		metric.WithDescription("Executed instructions by kind and outcome"))
	if err != nil {
		return nil, fmt.Errorf("runtime: instruction counter: %w", err)
	}
	r.executed = executed
	return r, nil
}

func (r *Runtime) ProgramID() crypto.Address { return r.programID }

func (r *Runtime) TokenProgramID() crypto.Address { return r.tokenProgramID }

// Execute verifies, runs and commits one instruction. The returned receipt is
// non-nil whenever the signature could be verified, even if execution failed;
// the error then carries the handler failure.
func (r *Runtime) Execute(ctx context.Context, ix *types.Instruction) (*types.Receipt, error) {
	if ix == nil {
		return nil, fmt.Errorf("%w: nil instruction", ErrInvalidPayload)
	}
	ctx, span := r.tracer.Start(ctx, "runtime.execute",
		trace.WithAttributes(attribute.String("instruction.kind", ix.Kind.String())))
	defer span.End()

	hash, err := ix.Hash(r.programID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	sender, err := ix.From(r.programID)
	if err != nil {
		span.SetStatus(codes.Error, "signature")
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	span.SetAttributes(attribute.String("instruction.signer", sender.String()))

	receipt := &types.Receipt{
		ID:     uuid.NewString(),
		Hash:   "0x" + hex.EncodeToString(hash),
		Kind:   ix.Kind,
		Signer: sender,
		Nonce:  ix.Nonce,
		Events: []*types.Event{},
	}

	c, err := r.decodeCall(sender, ix)
	if err != nil {
		return r.finish(ctx, span, receipt, time.Time{}, err)
	}
	receipt.Order = c.order

	waitStart := time.Now()
	unlock := r.locks.lock(append(c.accounts, sender))
	defer unlock()
	r.metrics.ObserveLockWait(time.Since(waitStart))
	if err := ctx.Err(); err != nil {
		return r.finish(ctx, span, receipt, time.Time{}, err)
	}

	start := time.Now()
	journal := state.NewManager(r.db)
	buffer := &events.Buffer{}
	if err := r.apply(journal, buffer, sender, ix, c); err != nil {
		journal.Discard()
		buffer.Reset()
		return r.finish(ctx, span, receipt, start, err)
	}
	span.SetAttributes(attribute.Int("state.writes", journal.Dirty()))
	if err := journal.Commit(); err != nil {
		buffer.Reset()
		return r.finish(ctx, span, receipt, start, err)
	}
	receipt.Events = buffer.Flush(r.emitter)
	return r.finish(ctx, span, receipt, start, nil)
}

func (r *Runtime) apply(journal *state.Manager, buffer *events.Buffer, sender crypto.Address, ix *types.Instruction, c *call) error {
	current, err := journal.Nonce(sender)
	if err != nil {
		return err
	}
	if ix.Nonce != current+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, current+1, ix.Nonce)
	}
	tokens := token.NewEngine(r.tokenProgramID)
	tokens.SetState(journal)
	tokens.SetEmitter(buffer)
	esc := escrow.NewEngine(r.programID)
	esc.SetState(journal)
	esc.SetTokens(tokens)
	esc.SetEmitter(buffer)

	x := &executor{signer: crypto.VerifiedSigner(sender), escrow: esc, tokens: tokens}
	if err := c.run(x); err != nil {
		return err
	}
	return journal.SetNonce(sender, ix.Nonce)
}

func (r *Runtime) finish(ctx context.Context, span trace.Span, receipt *types.Receipt, start time.Time, execErr error) (*types.Receipt, error) {
	receipt.CreatedAt = r.now().UTC()
	outcome := types.ReceiptStatusOK
	if execErr != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.ErrorClass = Classify(execErr)
		receipt.Error = execErr.Error()
		outcome = receipt.ErrorClass
		span.RecordError(execErr)
		span.SetStatus(codes.Error, receipt.ErrorClass)
	} else {
		receipt.Status = types.ReceiptStatusOK
		for _, evt := range receipt.Events {
			r.metrics.RecordEvent(evt.Type)
		}
	}
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}
	r.metrics.ObserveInstruction(receipt.Kind.String(), outcome, elapsed)
	r.executed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", receipt.Kind.String()),
		attribute.String("outcome", outcome),
	))

	attrs := []any{
		slog.String("kind", receipt.Kind.String()),
		slog.String("signer", receipt.Signer.String()),
		slog.Uint64("nonce", receipt.Nonce),
		slog.String("receipt", receipt.ID),
	}
	if receipt.Order != nil {
		attrs = append(attrs, slog.String("order", receipt.Order.String()))
	}
	if execErr != nil {
		attrs = append(attrs, slog.String("errorClass", receipt.ErrorClass), slog.String("error", receipt.Error))
		r.logger.Warn("instruction failed", attrs...)
	} else {
		attrs = append(attrs, slog.Int("events", len(receipt.Events)))
		r.logger.Info("instruction committed", attrs...)
	}

	if r.recorder != nil {
		// The state may already be committed; a cancelled caller must not
		// drop its receipt.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		err := r.recorder.Record(recordCtx, receipt)
		cancel()
		if err != nil {
			r.logger.Error("record receipt", slog.String("receipt", receipt.ID), slog.String("error", err.Error()))
		}
	}
	return receipt, execErr
}
