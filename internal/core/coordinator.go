package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/metrics"
	"github.com/mikey/ta-triage/internal/roster"
	"github.com/mikey/ta-triage/internal/scheduler"
)

// CoordinatorConfig represents the tunable behaviour of the coordinator.
type CoordinatorConfig struct {
	Policy             PolicyConfig
	ReviewAddress      string
	PollInterval       time.Duration
	ResetCheckInterval time.Duration
	MaxConcurrency     int
	CallTimeout        time.Duration
}

// Coordinator orchestrates triage for inbound student email: classify,
// route, auto-respond or queue for human approval, and keep the sender
// ledger current. Two background tasks drive it: a monitor that polls the
// transport and a daily quota reset check.
//
// Messages within a batch are processed concurrently; the only ordering
// guarantee is that one message's own pipeline is sequential, and that a
// sender's ledger entries land in send-completion order.
type Coordinator struct {
	transport  Transport
	classifier Classifier
	responder  Responder
	ledger     *SenderLedger
	queue      *ApprovalQueue
	quota      *QuotaCounter
	roster     *roster.Checker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        CoordinatorConfig

	mu          sync.Mutex
	active      bool
	lastFetch   time.Time
	monitorTask *scheduler.Task
	resetTask   *scheduler.Task

	seenMu sync.Mutex
	seen   map[string]time.Time // message ID -> time it was first processed
}

// NewCoordinator creates a coordinator. Call Start to begin monitoring.
func NewCoordinator(
	transport Transport,
	classifier Classifier,
	responder Responder,
	ledger *SenderLedger,
	queue *ApprovalQueue,
	quota *QuotaCounter,
	rosterChecker *roster.Checker,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Coordinator{
		transport:  transport,
		classifier: classifier,
		responder:  responder,
		ledger:     ledger,
		queue:      queue,
		quota:      quota,
		roster:     rosterChecker,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		seen:       make(map[string]time.Time),
	}
}

// Start launches the monitoring and daily-reset tasks. Starting an active
// coordinator is a no-op with a warning.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		c.logger.Warn("Coordinator is already running")
		return
	}
	c.active = true
	c.lastFetch = time.Now().Add(-24 * time.Hour)

	c.monitorTask = scheduler.New("mail-monitor", c.cfg.PollInterval, c.monitorTick, c.logger)
	c.resetTask = scheduler.New("quota-reset", c.cfg.ResetCheckInterval, c.resetTick, c.logger)
	c.monitorTask.Start()
	c.resetTask.Start()

	c.logger.Info("Coordinator started",
		zap.Duration("poll_interval", c.cfg.PollInterval),
		zap.Duration("reset_check_interval", c.cfg.ResetCheckInterval))
}

// Stop halts both background tasks, waiting for any tick in flight. The
// approval queue and sender ledger are left intact for restart. Stopping an
// inactive coordinator is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	monitorTask, resetTask := c.monitorTask, c.resetTask
	c.mu.Unlock()

	monitorTask.Stop()
	resetTask.Stop()
	c.logger.Info("Coordinator stopped")
}

// monitorTick fetches messages since the last successful fetch and hands
// them to HandleBatch. A transport error abandons this tick; the next tick
// retries with the same watermark.
func (c *Coordinator) monitorTick(ctx context.Context) error {
	c.mu.Lock()
	since := c.lastFetch
	c.mu.Unlock()

	fetchStart := time.Now()
	callCtx, cancel := c.callContext(ctx)
	msgs, err := c.transport.FetchSince(callCtx, since)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	c.mu.Lock()
	c.lastFetch = fetchStart
	c.mu.Unlock()

	// IDs marked before the fetch watermark can never be fetched again; the
	// hour of slack absorbs clock skew between receipt and processing.
	c.pruneSeen(since.Add(-time.Hour))

	if len(msgs) > 0 {
		c.logger.Info("Fetched new messages", zap.Int("count", len(msgs)))
		c.HandleBatch(ctx, msgs)
	}
	return nil
}

func (c *Coordinator) resetTick(ctx context.Context) error {
	if c.quota.ResetIfNewDay(time.Now()) {
		c.logger.Info("Reset daily auto-response counter")
	}
	return nil
}

// HandleBatch processes a batch of inbound messages. Messages fan out to a
// bounded worker pool; each one is independent and a failure in one never
// affects the others.
func (c *Coordinator) HandleBatch(ctx context.Context, msgs []*Message) {
	sem := make(chan struct{}, c.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for _, msg := range msgs {
		wg.Add(1)
		sem <- struct{}{}
		go func(m *Message) {
			defer wg.Done()
			defer func() { <-sem }()
			c.processMessage(ctx, m)
		}(msg)
	}
	wg.Wait()
}

// processMessage runs one message through the triage pipeline. Each
// message is handled at most once, keyed on its identifier.
func (c *Coordinator) processMessage(ctx context.Context, msg *Message) {
	if !c.markSeen(msg.ID) {
		c.logger.Debug("Skipping already-processed message", zap.String("message_id", msg.ID))
		return
	}

	if !c.roster.IsStudent(msg.SenderAddr) {
		c.logger.Info("Skipping non-student email", zap.String("sender", msg.SenderAddr))
		return
	}

	c.logger.Info("Processing email",
		zap.String("message_id", msg.ID),
		zap.String("sender", msg.SenderAddr),
		zap.String("subject", msg.Subject))

	sender, err := c.ledger.GetOrCreate(ctx, msg.SenderAddr, msg.SenderName)
	if err != nil {
		c.logger.Error("Failed to load sender record",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}

	classification := c.classify(ctx, msg)
	c.metrics.Processed.WithLabelValues(string(classification.Intent)).Inc()

	decision := Decide(classification.Intent, classification.Confidence, c.quota.State(), c.cfg.Policy)

	if decision == DecisionAutoRespond && !c.quota.TryConsume() {
		// Lost the race for the last quota slot; never drop the message.
		c.logger.Warn("Daily auto-response limit reached, queuing for approval",
			zap.String("message_id", msg.ID))
		decision = DecisionQueueForApproval
	}

	switch decision {
	case DecisionAutoRespond:
		c.autoRespond(ctx, msg, sender, classification.Intent)
	case DecisionQueueForApproval:
		c.queueForApproval(ctx, msg, sender, classification.Intent)
	}
}

// classify invokes the classifier, degrading to the fallback intent on any
// error so a classifier outage never drops a message.
func (c *Coordinator) classify(ctx context.Context, msg *Message) *Classification {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	result, err := c.classifier.Classify(callCtx, msg.Subject, msg.Body)
	if err != nil {
		c.metrics.ClassifierErrors.Inc()
		c.logger.Error("Intent classification failed, falling back to other",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return &Classification{Intent: IntentOther, Confidence: 0.0}
	}
	result.Intent = NormalizeIntent(string(result.Intent))
	return result
}

func (c *Coordinator) autoRespond(ctx context.Context, msg *Message, sender *Sender, intent Intent) {
	response, err := c.generate(ctx, msg, sender, intent)
	if err != nil {
		c.logger.Error("Failed to generate response",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}
	if response == "" {
		c.logger.Warn("No response generated", zap.String("message_id", msg.ID))
		return
	}

	if err := c.send(ctx, msg.SenderAddr, replySubject(msg.Subject), response); err != nil {
		c.metrics.SendFailures.Inc()
		c.logger.Error("Failed to send response",
			zap.String("message_id", msg.ID),
			zap.String("recipient", msg.SenderAddr),
			zap.Error(err))
		return
	}

	c.metrics.AutoResponses.Inc()
	c.logger.Info("Sent auto-response",
		zap.String("message_id", msg.ID),
		zap.String("recipient", msg.SenderAddr),
		zap.String("intent", string(intent)))

	if err := c.ledger.RecordInteraction(ctx, sender, msg, response, intent); err != nil {
		c.logger.Error("Failed to record interaction",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}

func (c *Coordinator) queueForApproval(ctx context.Context, msg *Message, sender *Sender, intent Intent) {
	draft, err := c.generate(ctx, msg, sender, intent)
	if err != nil {
		c.logger.Error("Failed to draft response for approval",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}

	id := c.queue.Enqueue(msg, sender, intent, draft)
	c.metrics.ApprovalsQueued.Inc()
	c.metrics.PendingApprovals.Set(float64(c.queue.Len()))
	c.logger.Info("Queued email for approval",
		zap.String("message_id", msg.ID),
		zap.String("approval_id", id),
		zap.String("intent", string(intent)))

	// Best effort: a notification failure never rolls back the enqueue.
	if c.cfg.ReviewAddress != "" {
		if err := c.notifyReviewer(ctx, msg, intent, draft); err != nil {
			c.logger.Warn("Failed to send approval notification",
				zap.String("approval_id", id),
				zap.Error(err))
		}
	}
}

func (c *Coordinator) notifyReviewer(ctx context.Context, msg *Message, intent Intent, draft string) error {
	subject := fmt.Sprintf("APPROVAL NEEDED: Response to %s - %s", msg.SenderName, intent)

	var body strings.Builder
	body.WriteString("The following student email needs your approval before sending a response:\n\n")
	fmt.Fprintf(&body, "FROM: %s <%s>\n", msg.SenderName, msg.SenderAddr)
	fmt.Fprintf(&body, "SUBJECT: %s\n", msg.Subject)
	fmt.Fprintf(&body, "INTENT: %s\n\n", intent)
	fmt.Fprintf(&body, "ORIGINAL MESSAGE:\n%s\n\n", msg.Body)
	fmt.Fprintf(&body, "DRAFT RESPONSE:\n%s\n", draft)

	return c.send(ctx, c.cfg.ReviewAddress, subject, body.String())
}

// Approve resolves a pending approval item and sends the response, using
// revisedText in place of the stored draft when non-empty. An unknown ID is
// a caller error. On send failure the item stays resolved but unsent; it is
// not re-queued.
func (c *Coordinator) Approve(ctx context.Context, id, revisedText string) error {
	item, err := c.queue.Resolve(id, revisedText)
	if err != nil {
		c.logger.Error("Invalid approval ID", zap.String("approval_id", id))
		return err
	}
	c.metrics.PendingApprovals.Set(float64(c.queue.Len()))

	msg := item.Message
	if err := c.send(ctx, msg.SenderAddr, replySubject(msg.Subject), item.Draft); err != nil {
		c.metrics.SendFailures.Inc()
		c.logger.Error("Failed to send approved response",
			zap.String("approval_id", id),
			zap.String("recipient", msg.SenderAddr),
			zap.Error(err))
		return fmt.Errorf("failed to send approved response: %w", err)
	}

	c.metrics.ApprovalsResolv.Inc()
	c.logger.Info("Sent approved response",
		zap.String("approval_id", id),
		zap.String("recipient", msg.SenderAddr))

	if err := c.ledger.RecordInteraction(ctx, item.Sender, msg, item.Draft, item.Intent); err != nil {
		c.logger.Error("Failed to record interaction",
			zap.String("approval_id", id),
			zap.Error(err))
	}
	return nil
}

// Discard drops a pending approval item without sending anything.
func (c *Coordinator) Discard(id string) error {
	if _, err := c.queue.Discard(id); err != nil {
		c.logger.Error("Invalid approval ID", zap.String("approval_id", id))
		return err
	}
	c.metrics.PendingApprovals.Set(float64(c.queue.Len()))
	c.logger.Info("Discarded approval item", zap.String("approval_id", id))
	return nil
}

// ListPendingApprovals returns an insertion-ordered snapshot of the queue.
func (c *Coordinator) ListPendingApprovals() []*ApprovalItem {
	return c.queue.ListPending()
}

func (c *Coordinator) generate(ctx context.Context, msg *Message, sender *Sender, intent Intent) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	return c.responder.Generate(callCtx, msg, c.ledger.Snapshot(sender), intent)
}

// send is detached from the caller's cancellation: a delivery already in
// flight completes or fails on its own, bounded only by the call timeout.
func (c *Coordinator) send(ctx context.Context, to, subject, body string) error {
	callCtx, cancel := c.callContext(context.WithoutCancel(ctx))
	defer cancel()
	return c.transport.Send(callCtx, to, subject, body)
}

func (c *Coordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

func (c *Coordinator) markSeen(id string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = time.Now()
	return true
}

// pruneSeen drops idempotency entries marked before the cutoff, keeping the
// set bounded by the fetch window over a long-running process.
func (c *Coordinator) pruneSeen(cutoff time.Time) {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	for id, at := range c.seen {
		if at.Before(cutoff) {
			delete(c.seen, id)
		}
	}
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
