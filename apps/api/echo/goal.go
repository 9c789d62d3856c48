package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmkamba/kanisa/core/goal"
)

type goalApi struct {
	svc      *goal.Service
	validate *validator.Validate
}

func registerGoalAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *goal.Service, validate *validator.Validate) {
	api := goalApi{svc: svc, validate: validate}

	gg := g.Group("/goals", jwt)
	gg.POST("", api.create)
	gg.GET("", api.query)

	dg := gg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
}

// Handlers

func (api *goalApi) create(ctx echo.Context) error {
	var data goal.NewGoal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGoal")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	gl, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, gl)
}

func (api *goalApi) query(ctx echo.Context) error {
	filter := new(goal.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []goal.Goal{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	goals, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying goals")
	}
	if goals == nil {
		goals = []goal.Goal{}
	}
	return ctx.JSON(http.StatusOK, goals)
}

func (api *goalApi) retrieve(ctx echo.Context) error {
	gl, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, gl)
}

func (api *goalApi) update(ctx echo.Context) error {
	var data goal.UpdateGoal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGoal")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	gl, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, gl)
}
