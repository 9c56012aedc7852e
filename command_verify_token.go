package optin

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type VerifyTokenMessage struct {
	Token      string `json:"token" example:"Ab3dEfGh2JkLmNpQrStUvWxY" doc:"Token from the confirmation link"`
	OnResponse func(resp *VerifyTokenResponse)
}

func (m VerifyTokenMessage) Type() string { return "optin.token.verify" }

// Validate will validate the message
func (m VerifyTokenMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(
			&m.Token,
			validation.Required,
			validation.Length(1, 256),
		),
	)
}

type VerifyTokenResponse struct {
	EntryID   string `json:"entry_id,omitempty"`
	AgentName string `json:"agent,omitempty"`
	Found     bool   `json:"found"`
	Expired   bool   `json:"expired"`
	OptedIn   bool   `json:"opted_in"`
}

type VerifyTokenHandler struct {
	manager *Manager
	logger  Logger
}

// NewVerifyTokenHandler creates a handler with sane defaults.
func NewVerifyTokenHandler(manager *Manager) *VerifyTokenHandler {
	return &VerifyTokenHandler{
		manager: manager,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *VerifyTokenHandler) WithLogger(logger Logger) *VerifyTokenHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyTokenHandler) Execute(ctx context.Context, event VerifyTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during opt-in token verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyTokenHandler) execute(ctx context.Context, event VerifyTokenMessage) error {
	resp := &VerifyTokenResponse{}

	// a missing token is a failed verification, not a bad request
	if err := event.Validate(); err != nil {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	v, err := h.manager.Verify(ctx, event.Token)
	if v != nil {
		resp.Found = v.Found
		resp.Expired = v.Expired
		resp.OptedIn = v.OptedIn
		if v.Entry != nil && v.Found {
			resp.EntryID = v.Entry.ID.String()
			resp.AgentName = v.Entry.AgentName
		}
	}

	// a failed callback does not undo the opt-in, so callers still get the response
	if err != nil && !resp.OptedIn {
		return richError(err, "failed to verify opt-in token")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	if err != nil {
		return richError(err, "opt-in callback failed")
	}

	return nil
}
