package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmkamba/kanisa/core/prospect"
)

type prospectApi struct {
	svc      *prospect.Service
	validate *validator.Validate
}

func registerProspectAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *prospect.Service, validate *validator.Validate) {
	api := prospectApi{svc: svc, validate: validate}

	pg := g.Group("/prospects", jwt)
	pg.POST("", api.create)
	pg.GET("", api.query)
	pg.DELETE("", api.destroyMultiple)
	pg.GET("/stages", api.queryStages)

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/stage-history", api.stageHistory)
	dg.POST("/mark-attended", api.markAttended)
	dg.POST("/update-progress", api.updateProgress)

	g.GET("/drop-offs", api.queryDropOffs, jwt)
}

// Handlers

func (api *prospectApi) create(ctx echo.Context) error {
	var data prospect.NewProspect
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProspect")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating prospect")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *prospectApi) query(ctx echo.Context) error {
	filter := new(prospect.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []prospect.Prospect{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	prospects, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying prospects")
	}
	if prospects == nil {
		prospects = []prospect.Prospect{}
	}
	return ctx.JSON(http.StatusOK, prospects)
}

func (api *prospectApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *prospectApi) update(ctx echo.Context) error {
	var data prospect.UpdateProspect
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProspect")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *prospectApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *prospectApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *prospectApi) stageHistory(ctx echo.Context) error {
	entries, err := api.svc.StageHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []prospect.StageEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *prospectApi) markAttended(ctx echo.Context) error {
	var data MarkAttendedRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendedRequest")
	}
	if data.ActivityDate.IsZero() {
		data.ActivityDate = time.Now().UTC()
	}

	p, err := api.svc.MarkAttended(ctx.Request().Context(), ctx.Param("id"), data.ActivityDate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *prospectApi) updateProgress(ctx echo.Context) error {
	var data prospect.StageAdvance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StageAdvance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.AdvanceStage(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *prospectApi) queryDropOffs(ctx echo.Context) error {
	filter := new(prospect.DropOffFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []prospect.DropOff{})
	}

	dropOffs, err := api.svc.QueryDropOffs(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying drop-offs")
	}
	if dropOffs == nil {
		dropOffs = []prospect.DropOff{}
	}
	return ctx.JSON(http.StatusOK, dropOffs)
}

func (api *prospectApi) queryStages(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, prospect.Stages)
}

type (
	MarkAttendedRequest struct {
		ActivityDate time.Time `json:"activity_date"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
