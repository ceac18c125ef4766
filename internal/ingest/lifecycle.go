// Package ingest drives one media file through the upload pipeline:
// fingerprint, duplicate check, optional compression, transport, and
// the final persisted record. Each file gets its own Lifecycle; a batch
// is just many Lifecycles sharing the transport budget and the encoder.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"loft/internal/apiclient"
	"loft/internal/asset"
	"loft/internal/compress"
	"loft/internal/config"
	"loft/internal/dedup"
	"loft/internal/fileutil"
	"loft/internal/fingerprint"
	"loft/internal/logging"
	"loft/internal/services"
	"loft/internal/transport"
)

// Decision resolves an awaiting_decision pause.
type Decision int

const (
	// DecisionUseExisting reuses the duplicate candidate and records a
	// usage instead of uploading.
	DecisionUseExisting Decision = iota
	// DecisionUploadAnyway continues the pipeline with dedup bypassed.
	DecisionUploadAnyway
)

// Event is one advisory progress notification.
type Event struct {
	State   asset.State
	Percent float64
	Message string
	// Candidate is set on the awaiting_decision event.
	Candidate *asset.Candidate
}

// Request names the file to ingest.
type Request struct {
	Path string
	// Usage, when set, is attached to the persisted asset, including
	// the use-existing path.
	Usage *asset.UsageLocation
}

// Result is the terminal outcome of a lifecycle.
type Result struct {
	State asset.State
	Asset *asset.Descriptor
	// ReusedExisting is true when no upload happened because an
	// existing asset was chosen or the server short-circuited.
	ReusedExisting bool
	Compression    *compress.Result
}

// Deps carries the collaborators a Lifecycle needs.
type Deps struct {
	Cfg       *config.Config
	Resolver  *dedup.Resolver
	Uploader  *transport.Uploader
	Client    *apiclient.Client
	EngineRef *compress.EngineRef
	Logger    *slog.Logger
	// OnEvent receives state and progress notifications. Called from
	// the lifecycle goroutine; it must not block indefinitely.
	OnEvent func(Event)
}

// Lifecycle runs one file through the pipeline.
type Lifecycle struct {
	deps    Deps
	request Request
	logger  *slog.Logger

	mu        sync.Mutex
	state     asset.State
	preview   *Preview
	candidate *asset.Candidate

	// Buffered so Decide can be called from inside the OnEvent callback
	// without deadlocking against the waiting Run goroutine.
	decisionCh chan Decision
	cancel     context.CancelFunc
}

// NewLifecycle builds a lifecycle in the idle state.
func NewLifecycle(deps Deps, request Request) *Lifecycle {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Lifecycle{
		deps:    deps,
		request: request,
		logger: logging.NewComponentLogger(logger, "ingest").With(
			logging.String("filename", filepath.Base(request.Path))),
		state:      asset.StateIdle,
		decisionCh: make(chan Decision, 1),
	}
}

// SetOnEvent overrides the shared event callback for this lifecycle.
// Must be called before Run.
func (l *Lifecycle) SetOnEvent(fn func(Event)) {
	l.deps.OnEvent = fn
}

// State returns the current pipeline state.
func (l *Lifecycle) State() asset.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Candidate returns the duplicate candidate while awaiting a decision.
func (l *Lifecycle) Candidate() *asset.Candidate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.candidate
}

// Preview returns the transient staged reference, nil before
// fingerprinting starts.
func (l *Lifecycle) Preview() *Preview {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.preview
}

// Decide resolves an awaiting_decision pause. Calling it in any other
// state is a no-op; the value is consumed once.
func (l *Lifecycle) Decide(d Decision) {
	select {
	case l.decisionCh <- d:
	default:
	}
}

// Cancel aborts the run from outside.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// transition moves to next, enforcing the state machine. An illegal
// edge is a programming error.
func (l *Lifecycle) transition(next asset.State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CanTransition(next) {
		return services.Wrap(nil, "ingest", "transition",
			fmt.Sprintf("illegal transition %s -> %s", l.state, next), nil)
	}
	l.logger.Debug("state transition",
		logging.String("from", string(l.state)),
		logging.String("to", string(next)))
	l.state = next
	if next.IsTerminal() {
		l.preview.Release()
	}
	return nil
}

func (l *Lifecycle) emit(ev Event) {
	if l.deps.OnEvent != nil {
		l.deps.OnEvent(ev)
	}
}

func (l *Lifecycle) fail(err error) (*Result, error) {
	_ = l.transition(asset.StateFailed)
	l.emit(Event{State: asset.StateFailed, Message: err.Error()})
	l.logger.Error("ingest failed", logging.Error(err))
	return &Result{State: asset.StateFailed}, err
}

func (l *Lifecycle) cancelled(err error) (*Result, error) {
	_ = l.transition(asset.StateCancelled)
	l.emit(Event{State: asset.StateCancelled})
	l.logger.Info("ingest cancelled")
	return &Result{State: asset.StateCancelled}, err
}

// Run executes the pipeline to a terminal state. It blocks in
// awaiting_decision until Decide is called or the context ends. The
// preview reference is released on every exit path.
func (l *Lifecycle) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	// Terminal entry releases the preview; this covers panics and early
	// returns before any transition fired.
	defer func() {
		l.mu.Lock()
		preview := l.preview
		l.mu.Unlock()
		preview.Release()
	}()

	size, err := fileutil.FileSize(l.request.Path)
	if err != nil {
		return l.fail(services.Wrap(services.ErrValidation, "ingest", "stat", "cannot read input", err))
	}
	contentType, mediaType, ok := asset.ContentTypeForPath(l.request.Path)
	if !ok {
		return l.fail(services.Wrap(services.ErrValidation, "ingest", "classify",
			fmt.Sprintf("unsupported file type %s", filepath.Ext(l.request.Path)), nil))
	}

	// idle -> fingerprinting creates the transient preview reference.
	if err := l.transition(asset.StateFingerprinting); err != nil {
		return l.fail(err)
	}
	preview, err := newPreview(l.request.Path, filepath.Join(l.deps.Cfg.Paths.StagingDir, "previews"))
	if err != nil {
		return l.fail(services.Wrap(nil, "ingest", "preview", "cannot stage preview", err))
	}
	l.mu.Lock()
	l.preview = preview
	l.mu.Unlock()
	l.emit(Event{State: asset.StateFingerprinting})

	digest := fingerprint.ComputeFile(ctx, l.request.Path, l.deps.Cfg.FingerprintCeilingBytes())
	if err := ctx.Err(); err != nil {
		return l.cancelled(services.Wrap(services.ErrCancelled, "ingest", "fingerprint", "cancelled", err))
	}
	if digest.IsIndeterminate() {
		l.logger.Info("fingerprint indeterminate, dedup degrades to filename only")
	}

	if err := l.transition(asset.StateDedupCheck); err != nil {
		return l.fail(err)
	}
	l.emit(Event{State: asset.StateDedupCheck})

	filename := fileutil.NormalizeFilename(l.request.Path)
	force := false
	if l.deps.Resolver != nil {
		match := l.deps.Resolver.Resolve(ctx, digest, filename)
		if err := ctx.Err(); err != nil {
			return l.cancelled(services.Wrap(services.ErrCancelled, "ingest", "dedup", "cancelled", err))
		}
		if match.Found && match.Media != nil {
			result, decided, err := l.awaitDecision(ctx, match)
			if err != nil || result != nil {
				return result, err
			}
			force = decided == DecisionUploadAnyway
		}
	}

	// Transport owns the hard ceiling, but checking before a long
	// compression pass saves the work when the input cannot ever fit.
	payloadPath := l.request.Path
	payloadSize := size
	var compression *compress.Result

	if mediaType == asset.MediaVideo && size > l.deps.Cfg.BodyLimitBytes() {
		if err := l.transition(asset.StateCompressing); err != nil {
			return l.fail(err)
		}
		l.emit(Event{State: asset.StateCompressing})

		res, err := l.runCompression(ctx, payloadPath, payloadSize, mediaType)
		if err != nil {
			if ctx.Err() != nil {
				return l.cancelled(err)
			}
			return l.fail(err)
		}
		compression = res
		payloadPath = res.Path
		payloadSize = res.SizeBytes
		if payloadPath != l.request.Path {
			defer os.Remove(payloadPath)
		}
	}

	if err := l.transition(asset.StateUploading); err != nil {
		return l.fail(err)
	}
	l.emit(Event{State: asset.StateUploading})

	outcome, err := l.deps.Uploader.Upload(ctx, transport.Payload{
		Path:        payloadPath,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   payloadSize,
		Force:       force,
	}, func(p transport.Progress) {
		percent := float64(0)
		if p.TotalBytes > 0 {
			percent = float64(p.SentBytes) / float64(p.TotalBytes) * 100
		}
		l.emit(Event{State: asset.StateUploading, Percent: percent})
	})
	if err != nil {
		if ctx.Err() != nil {
			return l.cancelled(services.Wrap(services.ErrCancelled, "ingest", "upload", "cancelled", ctx.Err()))
		}
		return l.fail(err)
	}
	if outcome.Asset == nil {
		return l.fail(services.Wrap(services.ErrTransport, "ingest", "upload", "server returned no asset descriptor", nil))
	}

	if l.request.Usage != nil && l.deps.Client != nil {
		if _, err := l.deps.Client.AttachUsage(ctx, outcome.Asset.ID, *l.request.Usage); err != nil {
			l.logger.Warn("usage attach failed after upload", logging.Error(err))
		}
	}

	if err := l.transition(asset.StatePersisted); err != nil {
		return l.fail(err)
	}
	l.emit(Event{State: asset.StatePersisted, Percent: 100})
	l.logger.Info("asset persisted",
		logging.String(logging.FieldAssetID, outcome.Asset.ID),
		logging.Bool("deduplicated", outcome.DuplicateShortCircuit))

	return &Result{
		State:          asset.StatePersisted,
		Asset:          outcome.Asset,
		ReusedExisting: outcome.DuplicateShortCircuit,
		Compression:    compression,
	}, nil
}

// awaitDecision pauses the pipeline on a duplicate candidate. Both
// digest and filename matches stop here; only an explicit decision
// resumes the run. Returns a non-nil result when the lifecycle
// terminated inside the pause.
func (l *Lifecycle) awaitDecision(ctx context.Context, match dedup.Match) (*Result, Decision, error) {
	candidate := &asset.Candidate{
		Asset:         *match.Media,
		Usage:         match.Usage,
		Authoritative: match.Authoritative,
	}
	l.mu.Lock()
	l.candidate = candidate
	l.mu.Unlock()

	if err := l.transition(asset.StateAwaitingDecision); err != nil {
		result, rerr := l.fail(err)
		return result, 0, rerr
	}
	l.emit(Event{State: asset.StateAwaitingDecision, Candidate: candidate})

	select {
	case <-ctx.Done():
		result, err := l.cancelled(services.Wrap(services.ErrCancelled, "ingest", "decision", "cancelled while awaiting decision", ctx.Err()))
		return result, 0, err
	case decision := <-l.decisionCh:
		if decision == DecisionUseExisting {
			result, err := l.useExisting(ctx, candidate)
			return result, decision, err
		}
		l.logger.Info("uploading anyway, dedup bypassed")
		return nil, decision, nil
	}
}

// useExisting terminates the run by reusing the candidate: the usage
// ledger is incremented and nothing is uploaded.
func (l *Lifecycle) useExisting(ctx context.Context, candidate *asset.Candidate) (*Result, error) {
	desc := candidate.Asset
	if l.request.Usage != nil && l.deps.Client != nil {
		resp, err := l.deps.Client.AttachUsage(ctx, desc.ID, *l.request.Usage)
		if err != nil {
			if ctx.Err() != nil {
				return l.cancelled(services.Wrap(services.ErrCancelled, "ingest", "usage", "cancelled", ctx.Err()))
			}
			return l.fail(services.Wrap(nil, "ingest", "usage", "failed to record usage for existing asset", err))
		}
		desc.UsageCount = resp.UsageCount
	}

	if err := l.transition(asset.StatePersisted); err != nil {
		return l.fail(err)
	}
	l.emit(Event{State: asset.StatePersisted, Percent: 100})
	l.logger.Info("reusing existing asset", logging.String(logging.FieldAssetID, desc.ID))
	return &Result{State: asset.StatePersisted, Asset: &desc, ReusedExisting: true}, nil
}

func (l *Lifecycle) runCompression(ctx context.Context, path string, size int64, mediaType asset.MediaType) (*compress.Result, error) {
	var engine compress.Engine
	if l.deps.EngineRef != nil {
		acquired, err := l.deps.EngineRef.Acquire()
		if err == nil {
			engine = acquired
			defer l.deps.EngineRef.Release()
		} else {
			l.logger.Warn("encoder unavailable", logging.Error(err))
		}
	}

	compressor := compress.New(l.deps.Cfg, engine, l.deps.Logger)
	result, err := compressor.Compress(ctx, compress.Source{
		Path:      path,
		SizeBytes: size,
		MediaType: mediaType,
	}, compress.Options{
		OnProgress: func(percent float64) {
			l.emit(Event{State: asset.StateCompressing, Percent: percent})
		},
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
