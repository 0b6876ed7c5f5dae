package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/seating"
)

type seatingApi struct {
	svc      *seating.Service
	validate *validator.Validate
}

func registerSeatingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *seating.Service, validate *validator.Validate) {
	api := seatingApi{
		svc:      svc,
		validate: validate,
	}

	// un-authed endpoints
	g.POST("/check-result", api.checkResult)

	// admin endpoints
	ag := g.Group("/exam-assignment", jwt, adminMiddleware())
	ag.POST("", api.assign)
	ag.GET("", api.summary)
	ag.POST("/reset", api.reset)
}

// Handlers

func (api *seatingApi) assign(ctx echo.Context) error {
	var data seating.AssignRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}
	scope, key, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	res, err := api.svc.Assign(ctx.Request().Context(), scope, key)
	if err != nil {
		return errors.Wrap(err, "assigning seats")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *seatingApi) summary(ctx echo.Context) error {
	var data seating.ScopeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScopeRequest")
	}
	scope, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	sum, err := api.svc.Summary(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "summarizing seats")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *seatingApi) reset(ctx echo.Context) error {
	var data seating.ScopeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScopeRequest")
	}
	scope, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	res, err := api.svc.Reset(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "resetting seats")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *seatingApi) checkResult(ctx echo.Context) error {
	var data seating.LookupRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LookupRequest")
	}
	birthDate, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	info, err := api.svc.Lookup(ctx.Request().Context(), data.NationalID, birthDate)
	if err != nil {
		if errors.Cause(err) == seating.ErrNotFound {
			return ctx.JSON(http.StatusOK, CheckResultResponse{Found: false})
		}
		return errors.Wrap(err, "looking up seat")
	}
	return ctx.JSON(http.StatusOK, CheckResultResponse{Found: true, Applicant: &info})
}

type CheckResultResponse struct {
	Found     bool              `json:"found"`
	Applicant *seating.SeatInfo `json:"applicant,omitempty"`
}
