package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/followup"
)

type taskApi struct {
	svc      *followup.Service
	validate *validator.Validate
}

func registerTaskAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *followup.Service, validate *validator.Validate) {
	api := taskApi{svc: svc, validate: validate}

	tg := g.Group("/tasks", jwt)
	tg.POST("", api.create)
	tg.GET("", api.query)
	tg.GET("/pending", api.listPending)

	dg := tg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/assign", api.assign)
	dg.POST("/start", api.start)
	dg.POST("/complete", api.complete)
	dg.POST("/cancel", api.cancel)
}

// Handlers

func (api *taskApi) create(ctx echo.Context) error {
	var data followup.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *taskApi) query(ctx echo.Context) error {
	filter := new(followup.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []followup.Task{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tasks, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	if tasks == nil {
		tasks = []followup.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

// listPending returns the caller's open tasks; an explicit assigned_to param
// overrides the token subject.
func (api *taskApi) listPending(ctx echo.Context) error {
	assignee := ctx.QueryParam("assigned_to")
	if assignee == "" {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		assignee = claims.Subject
	}

	dueBefore := time.Now().UTC()
	if raw := ctx.QueryParam("due_before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "due_before", Error: "invalid RFC3339 timestamp"})
		}
		dueBefore = parsed
	}

	tasks, err := api.svc.ListPending(ctx.Request().Context(), assignee, dueBefore)
	if err != nil {
		return errors.Wrap(err, "listing pending tasks")
	}
	if tasks == nil {
		tasks = []followup.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) retrieve(ctx echo.Context) error {
	t, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) assign(ctx echo.Context) error {
	var data AssignTaskRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTaskRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Assign(ctx.Request().Context(), ctx.Param("id"), data.AssignedTo, data.AssignedToName)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) start(ctx echo.Context) error {
	t, err := api.svc.Start(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) complete(ctx echo.Context) error {
	var data CompleteTaskRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteTaskRequest")
	}
	if data.CompletedDate.IsZero() {
		data.CompletedDate = time.Now().UTC()
	}

	t, err := api.svc.Complete(ctx.Request().Context(), ctx.Param("id"), data.CompletedDate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) cancel(ctx echo.Context) error {
	t, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

type (
	AssignTaskRequest struct {
		AssignedTo     string `json:"assigned_to" validate:"required"`
		AssignedToName string `json:"assigned_to_name"`
	}

	CompleteTaskRequest struct {
		CompletedDate time.Time `json:"completed_date"`
	}
)

func (ar *AssignTaskRequest) Validate(validate *validator.Validate) error {
	ar.AssignedTo = core.CleanString(ar.AssignedTo)
	return validate.Struct(ar)
}
