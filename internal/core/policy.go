package core

// Decision is the outcome of the routing policy for a single message.
type Decision int

const (
	// DecisionAutoRespond sends a generated reply without human review
	DecisionAutoRespond Decision = iota
	// DecisionQueueForApproval holds a draft for human review
	DecisionQueueForApproval
)

func (d Decision) String() string {
	if d == DecisionAutoRespond {
		return "auto_respond"
	}
	return "queue_for_approval"
}

// PolicyConfig represents the tunable inputs to the routing policy
type PolicyConfig struct {
	// RequireApproval forces every message through human review
	RequireApproval bool
	// GradeConfidenceThreshold is the minimum classifier confidence for a
	// grade inquiry to be answered automatically
	GradeConfidenceThreshold float64
}

// QuotaState is a point-in-time view of the daily counter
type QuotaState struct {
	Count int
	Cap   int
}

// Exhausted reports whether no auto-response slots remain.
func (q QuotaState) Exhausted() bool {
	return q.Count >= q.Cap
}

// Decide routes a classified message. Rules are evaluated in precedence
// order and the first match wins:
//
//  1. quota exhausted          -> queue
//  2. global require-approval  -> queue
//  3. personal circumstance    -> queue, regardless of confidence
//  4. low-confidence grade inquiry -> queue
//  5. everything else          -> auto-respond
//
// Pure function: no side effects, deterministic for a given input.
func Decide(intent Intent, confidence float64, quota QuotaState, cfg PolicyConfig) Decision {
	if quota.Exhausted() {
		return DecisionQueueForApproval
	}
	if cfg.RequireApproval {
		return DecisionQueueForApproval
	}
	if intent == IntentPersonalCircumstance {
		return DecisionQueueForApproval
	}
	if intent == IntentGradeInquiry && confidence < cfg.GradeConfidenceThreshold {
		return DecisionQueueForApproval
	}
	return DecisionAutoRespond
}
