package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmkamba/kanisa/core/conversion"
)

type conversionApi struct {
	svc      *conversion.Service
	validate *validator.Validate
}

func registerConversionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *conversion.Service, validate *validator.Validate) {
	api := conversionApi{svc: svc, validate: validate}

	cg := g.Group("/conversions", jwt)
	cg.POST("", api.create)
	cg.GET("", api.query)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/baptism-dates", api.setBaptismDates)
}

// Handlers

func (api *conversionApi) create(ctx echo.Context) error {
	var data conversion.NewConversion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConversion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Record(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *conversionApi) query(ctx echo.Context) error {
	filter := new(conversion.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []conversion.Conversion{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	conversions, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying conversions")
	}
	if conversions == nil {
		conversions = []conversion.Conversion{}
	}
	return ctx.JSON(http.StatusOK, conversions)
}

func (api *conversionApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *conversionApi) setBaptismDates(ctx echo.Context) error {
	var data conversion.BaptismUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BaptismUpdate")
	}

	c, err := api.svc.SetBaptismDates(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}
