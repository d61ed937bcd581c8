package planner

import "errors"

// Generation failure kinds. Every error returned by Orchestrator.Generate
// wraps exactly one of these.
var (
	ErrUnknownCategory       = errors.New("planner: unknown plan category")
	ErrProfileMissing        = errors.New("planner: profile missing")
	ErrProfileUnavailable    = errors.New("planner: profile unavailable")
	ErrCompletionUnavailable = errors.New("planner: completion service unavailable")
	ErrQuotaExceeded         = errors.New("planner: completion quota exceeded")
	ErrInvalidPlanFormat     = errors.New("planner: invalid plan format")
	ErrStoreWriteFailed      = errors.New("planner: plan store write failed")
)

// Actions a client can offer alongside a failure message.
const (
	ActionRetry           = "retry"
	ActionUpgrade         = "upgrade"
	ActionCompleteProfile = "complete_profile"
)

// Message is a user-facing description of a generation failure.
type Message struct {
	Code   string `json:"code"`
	Text   string `json:"message"`
	Action string `json:"action"`
}

var messages = []struct {
	err error
	msg Message
}{
	{ErrUnknownCategory, Message{"unknown_category", "That plan type is not supported. Choose a workout or nutrition plan.", ActionRetry}},
	{ErrProfileMissing, Message{"profile_missing", "Complete your profile before generating a plan.", ActionCompleteProfile}},
	{ErrProfileUnavailable, Message{"profile_unavailable", "We could not load your profile right now. Please try again.", ActionRetry}},
	{ErrQuotaExceeded, Message{"quota_exceeded", "You have used all of your plan generations. Upgrade to keep generating plans.", ActionUpgrade}},
	{ErrCompletionUnavailable, Message{"completion_unavailable", "The plan generator is unavailable right now. Please try again in a few minutes.", ActionRetry}},
	{ErrInvalidPlanFormat, Message{"invalid_plan_format", "The generated plan came back incomplete. Please try again.", ActionRetry}},
	{ErrStoreWriteFailed, Message{"store_write_failed", "Your new plan could not be saved. Please try again.", ActionRetry}},
}

// UserMessage maps a Generate error to a distinct message per failure kind.
func UserMessage(err error) Message {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return Message{"internal", "Something went wrong. Please try again.", ActionRetry}
}

// Outcome returns the metrics label for a Generate result.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return UserMessage(err).Code
}
