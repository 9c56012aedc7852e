package optin

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type StartSessionMessage struct {
	Agent      string         `json:"agent" example:"newsletter" doc:"Registered agent name"`
	Properties map[string]any `json:"properties,omitempty" doc:"Opaque values stored with the entry"`
	OnResponse func(resp *StartSessionResponse)
}

func (m StartSessionMessage) Type() string { return "optin.session.start" }

// Validate will validate the message
func (m StartSessionMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(
			&m.Agent,
			validation.Required,
			validation.Length(1, 128),
		),
	)
}

type StartSessionResponse struct {
	Entry   *Entry
	EntryID string
	Token   string
	Success bool
}

type StartSessionHandler struct {
	manager *Manager
	logger  Logger
}

// NewStartSessionHandler creates a handler with sane defaults.
func NewStartSessionHandler(manager *Manager) *StartSessionHandler {
	return &StartSessionHandler{
		manager: manager,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *StartSessionHandler) WithLogger(logger Logger) *StartSessionHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *StartSessionHandler) Execute(ctx context.Context, event StartSessionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during opt-in session start",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *StartSessionHandler) execute(ctx context.Context, event StartSessionMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid opt-in session request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &StartSessionResponse{}

	entry, err := h.manager.StartSession(ctx, event.Agent, event.Properties)
	if err != nil {
		return richError(err, "failed to start opt-in session")
	}

	resp.Entry = entry
	resp.EntryID = entry.ID.String()
	resp.Token = entry.Token
	resp.Success = true

	h.logger.Debug("started opt-in session %s for agent %q", resp.EntryID, entry.AgentName)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
