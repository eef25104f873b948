package model

// Reasons recorded on routed messages. Adapters reuse the parse fallback when
// classifier output cannot be decoded.
const (
	ReasonNoActiveTasks          = "no_active_tasks"
	ReasonSingleWaitingUser      = "single_waiting_user_task"
	ReasonClassifierError        = "classifier_error_fallback_new"
	ReasonClassifierParse        = "classifier_parse_fallback_new"
	ReasonClassifierRejectedTask = "classifier_rejected_unknown_task:"
)

// RouteDecision is the router's verdict for one inbound message.
type RouteDecision struct {
	Action RouteAction
	TaskID string
	Reason string
}

// ActiveTaskSummary is what the classifier sees about an active task.
type ActiveTaskSummary struct {
	ID             string
	Title          string
	Status         TaskStatus
	OriginalPrompt string
	LastMessage    string
}

func SummarizeTask(t *Task) ActiveTaskSummary {
	return ActiveTaskSummary{
		ID:             t.ID,
		Title:          t.Title,
		Status:         t.Status,
		OriginalPrompt: t.OriginalPrompt,
		LastMessage:    t.LastMessage,
	}
}
