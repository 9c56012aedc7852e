package optin

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterOptinRoutes mounts the token verification endpoint.
func RegisterOptinRoutes[T any](app router.Router[T], opts ...OptinControllerOption) *OptinController {
	controller := NewOptinController(opts...)

	app.Get(controller.Routes.Verify, controller.Verify).
		SetName("optin-verify.get")
	app.Post(controller.Routes.Verify, controller.Verify).
		SetName("optin-verify.post")

	return controller
}

type OptinControllerRoutes struct {
	Verify string
}

type OptinController struct {
	Debug           bool
	Logger          Logger
	Manager         *Manager
	Routes          *OptinControllerRoutes
	TokenQueryKey   string
	SuccessRedirect string
	FailureRedirect string
	ErrorHandler    router.ErrorHandler
}

type OptinControllerOption func(*OptinController) *OptinController

// WithControllerManager sets the Manager used to verify tokens.
func WithControllerManager(m *Manager) OptinControllerOption {
	return func(c *OptinController) *OptinController {
		c.Manager = m
		return c
	}
}

// WithControllerConfig applies route, query key and redirect settings.
func WithControllerConfig(cfg Config) OptinControllerOption {
	return func(c *OptinController) *OptinController {
		if cfg == nil {
			return c
		}
		if route := cfg.GetVerifyRoute(); route != "" {
			c.Routes.Verify = route
		}
		if key := cfg.GetTokenQueryKey(); key != "" {
			c.TokenQueryKey = key
		}
		c.SuccessRedirect = cfg.GetSuccessRedirect()
		c.FailureRedirect = cfg.GetFailureRedirect()
		return c
	}
}

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) OptinControllerOption {
	return func(c *OptinController) *OptinController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewOptinController(opts ...OptinControllerOption) *OptinController {
	c := &OptinController{
		Logger:        defLogger{},
		ErrorHandler:  HTTPErrorHandler,
		TokenQueryKey: TokenQueryKey,
		Routes: &OptinControllerRoutes{
			Verify: "/optin",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing Manager in opt-in controller...")
	}

	return c
}

// VerifyTokenPayload holds a token posted instead of passed in the query
type VerifyTokenPayload struct {
	Token string `form:"doitoken" json:"token"`
}

func (a *OptinController) Verify(ctx router.Context) error {
	token := ctx.Query(a.TokenQueryKey, "")
	if token == "" && ctx.Method() == string(router.POST) {
		payload := new(VerifyTokenPayload)
		if err := ctx.Bind(payload); err != nil {
			a.Logger.Debug("opt-in verify parse payload: %v", err)
		}
		token = payload.Token
	}

	var res *VerifyTokenResponse

	req := VerifyTokenMessage{
		Token: token,
		OnResponse: func(resp *VerifyTokenResponse) {
			res = resp
		},
	}

	if err := NewVerifyTokenHandler(a.Manager).WithLogger(a.Logger).Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("opt-in verify error: %v", err)
		if res == nil || !res.OptedIn {
			return a.ErrorHandler(ctx, err)
		}
	}

	if res == nil {
		res = &VerifyTokenResponse{}
	}

	if a.Debug {
		a.Logger.Debug("opt-in verify response: %s", print.MaybePrettyJSON(res))
	}

	if res.OptedIn && a.SuccessRedirect != "" {
		return ctx.Redirect(a.SuccessRedirect, http.StatusSeeOther)
	}

	if !res.OptedIn && a.FailureRedirect != "" {
		return ctx.Redirect(a.FailureRedirect, http.StatusSeeOther)
	}

	status := http.StatusOK
	switch {
	case res.Expired:
		status = http.StatusGone
	case !res.OptedIn:
		status = http.StatusNotFound
	}

	return ctx.JSON(status, res)
}

// HTTPErrorHandler renders err as JSON using its go-errors code and text code.
func HTTPErrorHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	return c.JSON(code, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
