// Package api exposes the coordinator's operation surface over HTTP JSON,
// plus a websocket watch stream carrying every new version of a match record.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pokeguess/duel/internal/domain"
	"github.com/pokeguess/duel/internal/errors"
	"github.com/pokeguess/duel/internal/history"
	"github.com/pokeguess/duel/internal/leaderboard"
	"github.com/pokeguess/duel/internal/match"
	"github.com/pokeguess/duel/internal/timer"
)

type Config struct {
	Router      *gin.Engine
	Match       *match.Service
	History     *history.Service
	Leaderboard *leaderboard.Service
}

type API struct {
	ms *match.Service
	hs *history.Service
	ls *leaderboard.Service

	upgrader websocket.Upgrader
}

func New(c Config) *API {
	a := &API{
		ms: c.Match,
		hs: c.History,
		ls: c.Leaderboard,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	v1 := c.Router.Group("/v1")
	v1.POST("/matches", a.createMatch)
	v1.GET("/matches/:id", a.getMatch)
	v1.POST("/matches/:id/join", a.joinMatch)
	v1.POST("/matches/:id/answers", a.submitAnswer)
	v1.POST("/matches/:id/timeout", a.forceResolve)
	v1.GET("/matches/:id/watch", a.watchMatch)
	v1.GET("/results", a.listResults)
	v1.GET("/rankings", a.getRankings)

	return a
}

type createMatchRequest struct {
	Player string `json:"player"`
}

func (a *API) createMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	m, err := a.ms.CreateMatch(c.Request.Context(), match.CreateMatchRequest{Creator: req.Player})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, matchResponse{Match: m})
}

func (a *API) getMatch(c *gin.Context) {
	m, err := a.ms.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse{
		Match:       m,
		RemainingMS: timer.Remaining(m, time.Now()).Milliseconds(),
	})
}

type joinMatchRequest struct {
	Player string `json:"player"`
}

func (a *API) joinMatch(c *gin.Context) {
	var req joinMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	m, err := a.ms.JoinMatch(c.Request.Context(), match.JoinMatchRequest{
		MatchID: c.Param("id"),
		Joiner:  req.Player,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse{Match: m})
}

type submitAnswerRequest struct {
	Slot   domain.Slot `json:"slot"`
	Answer string      `json:"answer"`
}

func (a *API) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.ms.SubmitAnswer(c.Request.Context(), match.SubmitAnswerRequest{
		MatchID: c.Param("id"),
		Slot:    req.Slot,
		Answer:  req.Answer,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse{Match: resp.Match, Applied: resp.Applied})
}

type forceResolveRequest struct {
	Slot  domain.Slot `json:"slot"`
	Round int         `json:"round"`
}

func (a *API) forceResolve(c *gin.Context) {
	var req forceResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.ms.ForceResolve(c.Request.Context(), match.ForceResolveRequest{
		MatchID: c.Param("id"),
		Slot:    req.Slot,
		Round:   req.Round,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse{Match: resp.Match, Applied: resp.Applied})
}

func (a *API) listResults(c *gin.Context) {
	var req struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	results, err := a.hs.ListResults(c.Request.Context(), history.ListResultsRequest{Limit: req.Limit})
	if err != nil {
		renderError(c, err)
		return
	}

	resp := resultsResponse{Results: make([]matchResult, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, matchResult{
			MatchID:    r.MatchID,
			SlotA:      r.SlotA,
			SlotB:      r.SlotB,
			ScoreA:     r.ScoreA,
			ScoreB:     r.ScoreB,
			Winner:     r.Winner(),
			FinishTime: r.FinishTime,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) getRankings(c *gin.Context) {
	var req struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	entries, err := a.ls.GetRankings(c.Request.Context(), leaderboard.GetRankingsRequest{Limit: req.Limit})
	if err != nil {
		renderError(c, err)
		return
	}

	resp := rankingsResponse{Rankings: make([]rankingEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Rankings = append(resp.Rankings, rankingEntry{
			Player: e.Player,
			Wins:   int(e.Wins),
		})
	}

	c.JSON(http.StatusOK, resp)
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), e)
}
