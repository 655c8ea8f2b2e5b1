// Copyright 2026, Square, Inc.

// Package api provides the optional status API. Controllers are dumb wiring:
// they expose the orchestrator's live status and the run history over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"

	"github.com/square/hpcbuild/history"
	"github.com/square/hpcbuild/proto"
)

const (
	API_ROOT = "/api/v1/"
)

// A StatusReporter reports the current run. The orchestrator implements it.
type StatusReporter interface {
	Status() proto.RunStatus
}

// API provides controllers for endpoints it registers with its echo server.
type API struct {
	reporter StatusReporter
	store    history.Store
	// --
	echo *echo.Echo
}

// NewAPI creates a new API and registers all of its routes.
func NewAPI(reporter StatusReporter, store history.Store) *API {
	api := &API{
		reporter: reporter,
		store:    store,
		// --
		echo: echo.New(),
	}

	// //////////////////////////////////////////////////////////////////////
	// Routes
	// //////////////////////////////////////////////////////////////////////
	api.echo.GET(API_ROOT+"ping", api.pingHandler)
	// Status of the current (or last) run.
	api.echo.GET(API_ROOT+"status", api.statusHandler)
	// Past runs, newest first. ?limit=N caps the list.
	api.echo.GET(API_ROOT+"runs", api.runsHandler)
	// One run by id, with per-container results.
	api.echo.GET(API_ROOT+"runs/:runId", api.runHandler)

	// //////////////////////////////////////////////////////////////////////
	// Middleware
	// //////////////////////////////////////////////////////////////////////
	api.echo.Use(middleware.Recover())

	return api
}

// Run runs the API server. It blocks until Stop is called or the server
// fails.
func (api *API) Run(listenAddress string) error {
	return api.echo.Start(listenAddress)
}

// Stop shuts the server down, waiting up to 5s for in-flight requests.
func (api *API) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return api.echo.Shutdown(ctx)
}

func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.echo.ServeHTTP(w, r)
}

// --------------------------------------------------------------------------
// Controllers
// --------------------------------------------------------------------------

// GET <API_ROOT>/ping
func (api *API) pingHandler(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}

// GET <API_ROOT>/status
func (api *API) statusHandler(c echo.Context) error {
	status := api.reporter.Status()
	return c.JSON(http.StatusOK, statusView(status))
}

// GET <API_ROOT>/runs
func (api *API) runsHandler(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	runs, err := api.store.Runs(limit)
	if err != nil {
		return err
	}
	views := make([]runStatusView, len(runs))
	for i, r := range runs {
		// The run list omits per-container results; fetch one run for those.
		r.Results = nil
		views[i] = statusView(r)
	}
	return c.JSON(http.StatusOK, views)
}

// GET <API_ROOT>/runs/:runId
func (api *API) runHandler(c echo.Context) error {
	run, err := api.store.Run(c.Param("runId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, statusView(run))
}

// --------------------------------------------------------------------------

// runStatusView is RunStatus with the state rendered as its name instead of
// the internal byte.
type runStatusView struct {
	proto.RunStatus
	StateName string `json:"stateName"`
}

func statusView(status proto.RunStatus) runStatusView {
	return runStatusView{
		RunStatus: status,
		StateName: proto.StateName[status.State],
	}
}
