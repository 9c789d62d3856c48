package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmkamba/kanisa/core/report"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *report.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports", jwt)
	rg.GET("/weekly-tally", api.weeklyTally)
	rg.GET("/monthly-statistics", api.monthlyStatistics)
	rg.GET("/people-tally", api.peopleTally)
	rg.GET("/goal-progress", api.goalProgress)
}

// Handlers

func (api *reportApi) weeklyTally(ctx echo.Context) error {
	var params WeeklyTallyParams
	if err := ctx.Bind(&params); err != nil {
		return errors.Wrap(err, "binding to WeeklyTallyParams")
	}
	now := time.Now().UTC()
	if params.Year == 0 || params.Week == 0 {
		year, week := now.ISOWeek()
		if params.Year == 0 {
			params.Year = year
		}
		if params.Week == 0 {
			params.Week = week
		}
	}

	rows, err := api.svc.WeeklyTally(ctx.Request().Context(), params.Cluster, params.Year, params.Week)
	if err != nil {
		return errors.Wrap(err, "computing weekly tally")
	}
	if rows == nil {
		rows = []report.WeeklyTallyRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *reportApi) monthlyStatistics(ctx echo.Context) error {
	var params MonthlyStatisticsParams
	if err := ctx.Bind(&params); err != nil {
		return errors.Wrap(err, "binding to MonthlyStatisticsParams")
	}
	now := time.Now().UTC()
	if params.Year == 0 {
		params.Year = now.Year()
	}
	if params.Month == 0 {
		params.Month = int(now.Month())
	}

	rows, err := api.svc.MonthlyStatistics(ctx.Request().Context(), params.Cluster, params.Year, time.Month(params.Month))
	if err != nil {
		return errors.Wrap(err, "computing monthly statistics")
	}
	if rows == nil {
		rows = []report.MonthlyStatisticsRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *reportApi) peopleTally(ctx echo.Context) error {
	var params PeopleTallyParams
	if err := ctx.Bind(&params); err != nil {
		return errors.Wrap(err, "binding to PeopleTallyParams")
	}
	if params.Year == 0 {
		params.Year = time.Now().UTC().Year()
	}

	rows, err := api.svc.PeopleTally(ctx.Request().Context(), params.Year)
	if err != nil {
		return errors.Wrap(err, "computing people tally")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *reportApi) goalProgress(ctx echo.Context) error {
	var params GoalProgressParams
	if err := ctx.Bind(&params); err != nil {
		return errors.Wrap(err, "binding to GoalProgressParams")
	}
	if params.Year == 0 {
		params.Year = time.Now().UTC().Year()
	}

	row, err := api.svc.GoalProgress(ctx.Request().Context(), params.Cluster, params.Year)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, row)
}

type (
	WeeklyTallyParams struct {
		Cluster string `query:"cluster"`
		Year    int    `query:"year"`
		Week    int    `query:"week"`
	}

	MonthlyStatisticsParams struct {
		Cluster string `query:"cluster"`
		Year    int    `query:"year"`
		Month   int    `query:"month"`
	}

	PeopleTallyParams struct {
		Year int `query:"year"`
	}

	GoalProgressParams struct {
		Cluster string `query:"cluster"`
		Year    int    `query:"year"`
	}
)
