package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/core"
	"github.com/mikey/ta-triage/internal/metrics"
	"github.com/mikey/ta-triage/internal/roster"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeTransport struct {
	mu           sync.Mutex
	sent         []sentMail
	failSend     bool
	failOnCancel bool
	inbox        []*core.Message
	fetchErr     error
}

func (f *fakeTransport) FetchSince(ctx context.Context, since time.Time) ([]*core.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.inbox, nil
}

func (f *fakeTransport) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	if f.failSend {
		return errors.New("transport rejected message")
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeTransport) sentMails() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMail, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeClassifier struct {
	result *core.Classification
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, subject, body string) (*core.Classification, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

type fakeResponder struct {
	text string
	err  error
}

func (f *fakeResponder) Generate(ctx context.Context, msg *core.Message, sender *core.Sender, intent core.Intent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fixture struct {
	coordinator *core.Coordinator
	transport   *fakeTransport
	store       *fakeStore
	ledger      *core.SenderLedger
	quota       *core.QuotaCounter
	queue       *core.ApprovalQueue
}

func newFixture(t *testing.T, classifier core.Classifier, responder core.Responder, dailyCap int, policy core.PolicyConfig) *fixture {
	t.Helper()

	transport := &fakeTransport{}
	st := newFakeStore()
	logger := zap.NewNop()
	ledger := core.NewSenderLedger(st, logger)
	queue := core.NewApprovalQueue()
	quota := core.NewQuotaCounter(dailyCap, time.Now())
	m := metrics.New(prometheus.NewRegistry())

	coordinator := core.NewCoordinator(
		transport,
		classifier,
		responder,
		ledger,
		queue,
		quota,
		roster.NewChecker(nil, logger),
		m,
		logger,
		core.CoordinatorConfig{
			Policy:             policy,
			PollInterval:       time.Hour,
			ResetCheckInterval: time.Hour,
			MaxConcurrency:     1,
		},
	)

	return &fixture{
		coordinator: coordinator,
		transport:   transport,
		store:       st,
		ledger:      ledger,
		quota:       quota,
		queue:       queue,
	}
}

func inbound(id, from, subject string) *core.Message {
	return &core.Message{
		ID:         id,
		SenderAddr: from,
		SenderName: "Student",
		Subject:    subject,
		Body:       "body of " + id,
		ReceivedAt: time.Now(),
	}
}

func TestHandleBatchQuotaExhaustionFallsBackToQueue(t *testing.T) {
	// Scenario: cap 2, three confident assignment questions. The first two
	// are auto-responded, the third lands in the approval queue.
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentAssignmentQuestion, Confidence: 0.9}}
	responder := &fakeResponder{text: "Here is the answer."}
	f := newFixture(t, classifier, responder, 2, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	msgs := []*core.Message{
		inbound("m1", "a@university.edu", "HW question 1"),
		inbound("m2", "b@university.edu", "HW question 2"),
		inbound("m3", "c@university.edu", "HW question 3"),
	}
	f.coordinator.HandleBatch(context.Background(), msgs)

	assert.Len(t, f.transport.sentMails(), 2)
	pending := f.coordinator.ListPendingApprovals()
	require.Len(t, pending, 1)
	assert.Equal(t, "m3", pending[0].Message.ID)
}

func TestHandleBatchPersonalCircumstanceEscalates(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentPersonalCircumstance, Confidence: 0.99}}
	responder := &fakeResponder{text: "draft for review"}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "Medical appointment during exam"),
	})

	assert.Empty(t, f.transport.sentMails())
	pending := f.coordinator.ListPendingApprovals()
	require.Len(t, pending, 1)
	assert.Equal(t, core.IntentPersonalCircumstance, pending[0].Intent)
	assert.Equal(t, "draft for review", pending[0].Draft)
}

func TestHandleBatchGradeInquiryConfidence(t *testing.T) {
	responder := &fakeResponder{text: "The grading rubric is posted."}

	// Low confidence: queued.
	low := &fakeClassifier{result: &core.Classification{Intent: core.IntentGradeInquiry, Confidence: 0.5}}
	f := newFixture(t, low, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})
	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "Why did I lose points?"),
	})
	assert.Empty(t, f.transport.sentMails())
	assert.Len(t, f.coordinator.ListPendingApprovals(), 1)

	// High confidence: auto-responded.
	high := &fakeClassifier{result: &core.Classification{Intent: core.IntentGradeInquiry, Confidence: 0.8}}
	f2 := newFixture(t, high, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})
	f2.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "Why did I lose points?"),
	})
	assert.Len(t, f2.transport.sentMails(), 1)
	assert.Empty(t, f2.coordinator.ListPendingApprovals())
}

func TestHandleBatchClassifierErrorFallsOpen(t *testing.T) {
	// A classifier outage degrades to "other" and still answers the student.
	classifier := &fakeClassifier{err: errors.New("model unavailable")}
	responder := &fakeResponder{text: "Thanks for reaching out."}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "random subject"),
	})

	require.Len(t, f.transport.sentMails(), 1)
	sender := f.store.senders["a@university.edu"]
	require.NotNil(t, sender)
	require.Len(t, sender.History, 1)
	assert.Equal(t, core.IntentOther, sender.History[0].Intent)
}

func TestHandleBatchRecordsInteractionAfterSend(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentConceptualQuestion, Confidence: 0.9}}
	responder := &fakeResponder{text: "Recursion is a function calling itself."}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "How does recursion work?"),
	})

	sender := f.store.senders["a@university.edu"]
	require.NotNil(t, sender)
	require.Len(t, sender.History, 1)
	assert.Equal(t, "Recursion is a function calling itself.", sender.History[0].Response)

	sent := f.transport.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, sender.History[0].Response, sent[0].Body)
	assert.Equal(t, "Re: How does recursion work?", sent[0].Subject)
}

func TestHandleBatchSendFailureIsTerminal(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentAssignmentQuestion, Confidence: 0.9}}
	responder := &fakeResponder{text: "answer"}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})
	f.transport.failSend = true

	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "HW"),
	})

	// No send, no ledger append, nothing queued: terminal failure.
	sender := f.store.senders["a@university.edu"]
	require.NotNil(t, sender)
	assert.Empty(t, sender.History)
	assert.Empty(t, f.coordinator.ListPendingApprovals())
}

func TestSendOutlivesCancelledBatchContext(t *testing.T) {
	// A delivery in flight completes even when the surrounding batch context
	// is cancelled, as it is on coordinator shutdown.
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentAssignmentQuestion, Confidence: 0.9}}
	responder := &fakeResponder{text: "answer"}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})
	f.transport.failOnCancel = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.coordinator.HandleBatch(ctx, []*core.Message{
		inbound("m1", "a@university.edu", "HW"),
	})

	require.Len(t, f.transport.sentMails(), 1)
	sender := f.store.senders["a@university.edu"]
	require.NotNil(t, sender)
	assert.Len(t, sender.History, 1)
}

func TestHandleBatchMessageProcessedAtMostOnce(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentAssignmentQuestion, Confidence: 0.9}}
	responder := &fakeResponder{text: "answer"}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	msg := inbound("m1", "a@university.edu", "HW")
	f.coordinator.HandleBatch(context.Background(), []*core.Message{msg})
	f.coordinator.HandleBatch(context.Background(), []*core.Message{msg})

	assert.Len(t, f.transport.sentMails(), 1)
}

func TestApproveSendsStoredDraft(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentPersonalCircumstance, Confidence: 0.9}}
	responder := &fakeResponder{text: "the original draft"}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "Extension request"),
	})
	pending := f.coordinator.ListPendingApprovals()
	require.Len(t, pending, 1)

	require.NoError(t, f.coordinator.Approve(context.Background(), pending[0].ID, ""))

	sent := f.transport.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, "the original draft", sent[0].Body)

	// Ledger records the sent text.
	sender := f.store.senders["a@university.edu"]
	require.NotNil(t, sender)
	require.Len(t, sender.History, 1)
	assert.Equal(t, "the original draft", sender.History[0].Response)
}

func TestApproveSendsRevisedText(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentPersonalCircumstance, Confidence: 0.9}}
	responder := &fakeResponder{text: "the original draft"}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "Extension request"),
	})
	pending := f.coordinator.ListPendingApprovals()
	require.Len(t, pending, 1)

	require.NoError(t, f.coordinator.Approve(context.Background(), pending[0].ID, "a kinder revised reply"))

	sent := f.transport.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, "a kinder revised reply", sent[0].Body)

	sender := f.store.senders["a@university.edu"]
	require.Len(t, sender.History, 1)
	assert.Equal(t, "a kinder revised reply", sender.History[0].Response)
}

func TestApproveUnknownIDIsCallerError(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentOther, Confidence: 0.5}}
	f := newFixture(t, classifier, &fakeResponder{text: "x"}, 10, core.PolicyConfig{})

	err := f.coordinator.Approve(context.Background(), "nope", "")
	assert.ErrorIs(t, err, core.ErrApprovalNotFound)
}

func TestApproveSendFailureKeepsItemUnqueued(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentPersonalCircumstance, Confidence: 0.9}}
	responder := &fakeResponder{text: "draft"}
	f := newFixture(t, classifier, responder, 10, core.PolicyConfig{GradeConfidenceThreshold: 0.7})

	f.coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "Extension request"),
	})
	pending := f.coordinator.ListPendingApprovals()
	require.Len(t, pending, 1)

	f.transport.failSend = true
	err := f.coordinator.Approve(context.Background(), pending[0].ID, "")
	assert.Error(t, err)

	// The item is resolved but unsent; it is not re-queued.
	assert.Empty(t, f.coordinator.ListPendingApprovals())
	_, resolveAgain := f.queue.Resolve(pending[0].ID, "")
	assert.ErrorIs(t, resolveAgain, core.ErrApprovalNotFound)
}

func TestReviewNotificationIsBestEffort(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentPersonalCircumstance, Confidence: 0.9}}
	responder := &fakeResponder{text: "draft"}

	transport := &fakeTransport{}
	st := newFakeStore()
	logger := zap.NewNop()
	coordinator := core.NewCoordinator(
		transport,
		classifier,
		responder,
		core.NewSenderLedger(st, logger),
		core.NewApprovalQueue(),
		core.NewQuotaCounter(10, time.Now()),
		roster.NewChecker(nil, logger),
		metrics.New(prometheus.NewRegistry()),
		logger,
		core.CoordinatorConfig{
			Policy:         core.PolicyConfig{GradeConfidenceThreshold: 0.7},
			ReviewAddress:  "ta@university.edu",
			MaxConcurrency: 1,
		},
	)

	coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "a@university.edu", "Extension request"),
	})

	sent := transport.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, "ta@university.edu", sent[0].To)
	assert.Contains(t, sent[0].Subject, "APPROVAL NEEDED")
	assert.Contains(t, sent[0].Body, "draft")

	// A failing notification still leaves the item queued.
	transport.failSend = true
	coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m2", "b@university.edu", "Another extension request"),
	})
	assert.Len(t, coordinator.ListPendingApprovals(), 2)
}

func TestNonStudentMailIsSkipped(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentAssignmentQuestion, Confidence: 0.9}}
	responder := &fakeResponder{text: "answer"}

	transport := &fakeTransport{}
	st := newFakeStore()
	logger := zap.NewNop()
	coordinator := core.NewCoordinator(
		transport,
		classifier,
		responder,
		core.NewSenderLedger(st, logger),
		core.NewApprovalQueue(),
		core.NewQuotaCounter(10, time.Now()),
		roster.NewChecker([]string{"university.edu"}, logger),
		metrics.New(prometheus.NewRegistry()),
		logger,
		core.CoordinatorConfig{
			Policy:         core.PolicyConfig{GradeConfidenceThreshold: 0.7},
			MaxConcurrency: 1,
		},
	)

	coordinator.HandleBatch(context.Background(), []*core.Message{
		inbound("m1", "spam@elsewhere.com", "Buy now"),
		inbound("m2", "alex@university.edu", "HW question"),
	})

	sent := transport.sentMails()
	require.Len(t, sent, 1)
	assert.Equal(t, "alex@university.edu", sent[0].To)
	assert.Nil(t, st.senders["spam@elsewhere.com"])
}

func TestStartStopIdempotent(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentOther, Confidence: 0.5}}
	f := newFixture(t, classifier, &fakeResponder{text: "x"}, 10, core.PolicyConfig{})

	// Stop before start is a no-op.
	f.coordinator.Stop()

	f.coordinator.Start()
	f.coordinator.Start() // second start is a warning no-op
	f.coordinator.Stop()
	f.coordinator.Stop()

	// Restart leaves prior state intact.
	f.coordinator.Start()
	f.coordinator.Stop()
}

func TestHandleBatchParallelWorkers(t *testing.T) {
	classifier := &fakeClassifier{result: &core.Classification{Intent: core.IntentAssignmentQuestion, Confidence: 0.9}}
	responder := &fakeResponder{text: "answer"}

	transport := &fakeTransport{}
	st := newFakeStore()
	logger := zap.NewNop()
	quota := core.NewQuotaCounter(5, time.Now())
	coordinator := core.NewCoordinator(
		transport,
		classifier,
		responder,
		core.NewSenderLedger(st, logger),
		core.NewApprovalQueue(),
		quota,
		roster.NewChecker(nil, logger),
		metrics.New(prometheus.NewRegistry()),
		logger,
		core.CoordinatorConfig{
			Policy:         core.PolicyConfig{GradeConfidenceThreshold: 0.7},
			MaxConcurrency: 8,
		},
	)

	var msgs []*core.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, inbound(fmt.Sprintf("m%d", i), fmt.Sprintf("s%d@university.edu", i), "HW"))
	}
	coordinator.HandleBatch(context.Background(), msgs)

	// Exactly cap sends under contention; the rest queued, none dropped.
	assert.Len(t, transport.sentMails(), 5)
	assert.Len(t, coordinator.ListPendingApprovals(), 15)
	assert.Equal(t, 5, quota.State().Count)
}
