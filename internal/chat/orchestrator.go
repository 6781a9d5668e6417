// Package chat fans one admitted user query out to several model
// backends in parallel and multiplexes their fragment streams onto a
// single client event channel. Per-model order is preserved; cross-model
// interleaving is arbitrary, so every chunk event carries its model tag.
package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"solchat/internal/llm"
	"solchat/pkg/models"
)

// DefaultIdleTimeout bounds the wait for the next fragment from a single
// backend so a stalled stream cannot hold the client connection open.
const DefaultIdleTimeout = 60 * time.Second

// finalizeTimeout bounds transcript persistence after the stream ends.
const finalizeTimeout = 15 * time.Second

var (
	// ErrNoModels is returned when a fan-out is started with an empty
	// model set.
	ErrNoModels = errors.New("fan-out requires at least one model")

	// errIdleTimeout cancels a single model task whose backend stalled.
	errIdleTimeout = errors.New("backend idle timeout")
)

// Recorder persists finalized per-model transcripts and the usage
// transaction. It is the orchestrator's only storage dependency.
type Recorder interface {
	CreateMessage(ctx context.Context, message *models.ChatMessage) error
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
}

// FanOut describes one admitted query dispatch.
type FanOut struct {
	Session *models.ChatSession
	Query   *models.ChatMessage
	// History is the role-tagged conversation including the new query.
	History []llm.Message
	// Credits is the previously admitted amount to debit once every
	// stream reaches a terminal state.
	Credits int
}

// ChunkEvent is one forwarded fragment, tagged with the model that
// produced it.
type ChunkEvent struct {
	ChatSessionID string `json:"chatSessionId"`
	QueryID       string `json:"queryId"`
	Model         string `json:"model"`
	Chunk         string `json:"chunk"`
}

// ModelOutcome is the terminal status of one model's stream.
type ModelOutcome struct {
	Model  string `json:"model"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// DoneEvent is the terminal payload enumerating per-model outcomes.
type DoneEvent struct {
	ChatSessionID string         `json:"chatSessionId"`
	QueryID       string         `json:"queryId"`
	CreditsUsed   int            `json:"creditsUsed"`
	Results       []ModelOutcome `json:"results"`
}

// Orchestrator runs query fan-outs.
type Orchestrator struct {
	backends    *llm.Registry
	recorder    Recorder
	idleTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. A non-positive idleTimeout
// uses DefaultIdleTimeout.
func NewOrchestrator(backends *llm.Registry, recorder Recorder, idleTimeout time.Duration) *Orchestrator {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Orchestrator{backends: backends, recorder: recorder, idleTimeout: idleTimeout}
}

// task tracks one model's stream while it runs and after it terminates.
type task struct {
	model      string
	transcript strings.Builder
	status     models.MessageStatus
	err        string
}

type fragment struct {
	model string
	chunk string
}

// Run executes one fan-out: an init event, one independent streaming
// task per model, chunk events as fragments arrive, then finalization
// and a done event.
//
// A backend failure terminates only its own task. If the client
// disconnects (ctx cancelled), remaining tasks are cancelled promptly
// and partial transcripts are finalized as incomplete rather than
// dropped, so billing and history stay consistent with work performed.
func (o *Orchestrator) Run(ctx context.Context, fanOut FanOut, sink EventSink) error {
	modelIDs := dedupe(fanOut.Session.Models)
	if len(modelIDs) == 0 {
		return ErrNoModels
	}

	if err := sink.Send("init", map[string]bool{"ok": true}); err != nil {
		return err
	}

	tasks := make([]*task, len(modelIDs))
	fragments := make(chan fragment, 16)

	var wg sync.WaitGroup
	for i, model := range modelIDs {
		tasks[i] = &task{model: model}
		wg.Add(1)
		go func(t *task) {
			defer wg.Done()
			o.streamOne(ctx, t, fanOut.History, fragments)
		}(tasks[i])
	}

	// Close the fragment channel once every task has terminated so the
	// forwarding loop below can drain and exit.
	go func() {
		wg.Wait()
		close(fragments)
	}()

	for f := range fragments {
		event := ChunkEvent{
			ChatSessionID: fanOut.Session.ID,
			QueryID:       fanOut.Query.ID,
			Model:         f.model,
			Chunk:         f.chunk,
		}
		if err := sink.Send("chunk", event); err != nil {
			// The client connection is gone. Tasks observe ctx
			// cancellation; keep draining so they can finish.
			continue
		}
	}

	outcomes := o.finalize(ctx, fanOut, tasks)

	done := DoneEvent{
		ChatSessionID: fanOut.Session.ID,
		QueryID:       fanOut.Query.ID,
		CreditsUsed:   fanOut.Credits,
		Results:       outcomes,
	}
	if err := sink.Send("done", done); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// streamOne runs a single model task: it invokes the backend, appends
// each fragment to the task's transcript, forwards it to the shared
// channel, and classifies the terminal outcome. An idle watchdog cancels
// the task if the backend produces nothing for idleTimeout.
func (o *Orchestrator) streamOne(ctx context.Context, t *task, history []llm.Message, fragments chan<- fragment) {
	taskCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	activity := make(chan struct{}, 1)
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		timer := time.NewTimer(o.idleTimeout)
		defer timer.Stop()
		for {
			select {
			case <-taskCtx.Done():
				return
			case <-activity:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(o.idleTimeout)
			case <-timer.C:
				cancel(errIdleTimeout)
				return
			}
		}
	}()

	err := o.backends.Stream(taskCtx, t.model, history, func(chunk string) {
		select {
		case activity <- struct{}{}:
		default:
		}
		t.transcript.WriteString(chunk)
		select {
		case fragments <- fragment{model: t.model, chunk: chunk}:
		case <-taskCtx.Done():
		}
	})

	cancel(nil)
	<-watchdogDone

	switch {
	case err == nil:
		t.status = models.MessageCompleted
	case errors.Is(context.Cause(taskCtx), errIdleTimeout):
		t.status = models.MessageError
		t.err = errIdleTimeout.Error()
	case ctx.Err() != nil:
		// Client disconnected or the whole fan-out was cancelled.
		t.status = models.MessageIncomplete
		t.err = "stream cancelled"
	default:
		t.status = models.MessageError
		t.err = err.Error()
	}
}

// finalize persists one assistant message per model and the usage
// transaction. It runs on a detached context: a disconnected client must
// not prevent bookkeeping for work already performed.
func (o *Orchestrator) finalize(ctx context.Context, fanOut FanOut, tasks []*task) []ModelOutcome {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	now := time.Now()
	outcomes := make([]ModelOutcome, 0, len(tasks))
	modelIDs := make([]string, 0, len(tasks))

	for _, t := range tasks {
		modelIDs = append(modelIDs, t.model)
		message := &models.ChatMessage{
			ID:            uuid.New().String(),
			ChatSessionID: fanOut.Session.ID,
			Role:          models.RoleAssistant,
			Model:         t.model,
			Content:       t.transcript.String(),
			Status:        t.status,
			Error:         t.err,
			CreatedAt:     now,
		}
		if err := o.recorder.CreateMessage(saveCtx, message); err != nil {
			log.Printf("Failed to persist transcript for model %s: %v", t.model, err)
		}
		outcomes = append(outcomes, ModelOutcome{Model: t.model, Status: string(t.status), Error: t.err})
	}

	usage := &models.Transaction{
		ID:            uuid.New().String(),
		OwnerID:       fanOut.Session.OwnerID,
		OwnerKind:     fanOut.Session.OwnerKind,
		Type:          models.TransactionQueryUsage,
		CreditsAmount: -fanOut.Credits,
		Status:        models.TransactionCompleted,
		Usage: &models.UsageDetails{
			ChatSessionID: fanOut.Session.ID,
			QueryID:       fanOut.Query.ID,
			Models:        modelIDs,
		},
		CreatedAt: now,
	}
	if err := o.recorder.CreateTransaction(saveCtx, usage); err != nil {
		log.Printf("Failed to record usage transaction for query %s: %v", fanOut.Query.ID, err)
	}

	return outcomes
}

// dedupe collapses duplicate model identifiers, preserving first-seen
// order.
func dedupe(modelIDs []string) []string {
	seen := make(map[string]bool, len(modelIDs))
	distinct := make([]string, 0, len(modelIDs))
	for _, id := range modelIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		distinct = append(distinct, id)
	}
	return distinct
}
