package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmkamba/kanisa/core/weekly"
)

type weeklyApi struct {
	svc      *weekly.Service
	validate *validator.Validate
}

func registerWeeklyAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *weekly.Service, validate *validator.Validate) {
	api := weeklyApi{svc: svc, validate: validate}

	wg := g.Group("/weekly-reports", jwt)
	wg.POST("", api.create)
	wg.GET("", api.query)
	wg.GET("/:id", api.retrieve)
	wg.DELETE("/:id", api.destroy)
}

// Handlers

func (api *weeklyApi) create(ctx echo.Context) error {
	var data weekly.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *weeklyApi) query(ctx echo.Context) error {
	filter := new(weekly.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []weekly.Report{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reports, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying weekly reports")
	}
	if reports == nil {
		reports = []weekly.Report{}
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *weeklyApi) retrieve(ctx echo.Context) error {
	r, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *weeklyApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
