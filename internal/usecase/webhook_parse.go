// File: internal/usecase/webhook_parse.go
package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

type wirePayload struct {
	EventID        string        `json:"event_id"`
	EventType      string        `json:"event_type"`
	TaskDetail     *wireTask     `json:"task_detail"`
	ProgressDetail *wireProgress `json:"progress_detail"`
}

type wireTask struct {
	TaskID      string           `json:"task_id"`
	TaskTitle   string           `json:"task_title"`
	TaskURL     string           `json:"task_url"`
	Message     string           `json:"message"`
	StopReason  string           `json:"stop_reason"`
	Attachments []wireAttachment `json:"attachments"`
}

type wireProgress struct {
	TaskID       string `json:"task_id"`
	ProgressType string `json:"progress_type"`
	Message      string `json:"message"`
}

type wireAttachment struct {
	FileName  string      `json:"file_name"`
	URL       string      `json:"url"`
	SizeBytes json.Number `json:"size_bytes"`
}

func invalidPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// ParseEvent turns a provider webhook body into a typed event. Anything that
// is not one of the three known shapes fails with domain.ErrInvalidPayload.
func ParseEvent(payload []byte) (model.ProviderEvent, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, invalidPayload("empty body")
	}
	var w wirePayload
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, invalidPayload("decode: %v", err)
	}
	w.EventID = strings.TrimSpace(w.EventID)
	if w.EventID == "" {
		return nil, invalidPayload("missing event_id")
	}

	switch model.EventType(strings.TrimSpace(w.EventType)) {
	case model.EventTaskCreated:
		if w.TaskDetail == nil || strings.TrimSpace(w.TaskDetail.TaskID) == "" {
			return nil, invalidPayload("task_created without task_detail.task_id")
		}
		return model.TaskCreatedEvent{
			EventID:        w.EventID,
			ProviderTaskID: strings.TrimSpace(w.TaskDetail.TaskID),
			Title:          strings.TrimSpace(w.TaskDetail.TaskTitle),
			URL:            strings.TrimSpace(w.TaskDetail.TaskURL),
		}, nil

	case model.EventTaskProgress:
		if w.ProgressDetail == nil || strings.TrimSpace(w.ProgressDetail.TaskID) == "" {
			return nil, invalidPayload("task_progress without progress_detail.task_id")
		}
		return model.TaskProgressEvent{
			EventID:        w.EventID,
			ProviderTaskID: strings.TrimSpace(w.ProgressDetail.TaskID),
			ProgressType:   w.ProgressDetail.ProgressType,
			Message:        w.ProgressDetail.Message,
		}, nil

	case model.EventTaskStopped:
		d := w.TaskDetail
		if d == nil || strings.TrimSpace(d.TaskID) == "" {
			return nil, invalidPayload("task_stopped without task_detail.task_id")
		}
		reason := model.StopReason(strings.ToLower(strings.TrimSpace(d.StopReason)))
		if reason != model.StopFinish && reason != model.StopAsk {
			return nil, invalidPayload("unknown stop_reason %q", d.StopReason)
		}
		ev := model.TaskStoppedEvent{
			EventID:        w.EventID,
			ProviderTaskID: strings.TrimSpace(d.TaskID),
			Title:          strings.TrimSpace(d.TaskTitle),
			URL:            strings.TrimSpace(d.TaskURL),
			Message:        d.Message,
			StopReason:     reason,
		}
		for _, a := range d.Attachments {
			if strings.TrimSpace(a.URL) == "" {
				return nil, invalidPayload("attachment without url")
			}
			size, _ := a.SizeBytes.Int64()
			ev.Attachments = append(ev.Attachments, model.ProviderAttachment{
				FileName:  strings.TrimSpace(a.FileName),
				URL:       strings.TrimSpace(a.URL),
				SizeBytes: size,
			})
		}
		return ev, nil
	}
	return nil, invalidPayload("unknown event_type %q", w.EventType)
}
