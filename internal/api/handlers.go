package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/chaluvadis/schemasync/internal/api/auth"
	"github.com/chaluvadis/schemasync/internal/jobqueue"
	"github.com/chaluvadis/schemasync/internal/session"
	"github.com/chaluvadis/schemasync/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// CompareRequest is the body of POST /api/v1/compare.
type CompareRequest struct {
	SessionName  string `json:"session_name"`
	SourceConnID string `json:"source_conn_id"`
	TargetConnID string `json:"target_conn_id"`
	AutoResolve  bool   `json:"auto_resolve"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return httpError(http.StatusBadRequest, "email and password are required")
	}

	user, err := s.authSvc.Authenticate(req.Email, req.Password)
	if err != nil {
		return httpError(http.StatusUnauthorized, "invalid credentials")
	}

	pair, err := s.authSvc.CreateTokenPair(user)
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("failed to create token pair")
		return httpError(http.StatusInternalServerError, "failed to create tokens")
	}

	return c.JSON(http.StatusOK, pair)
}

func (s *Server) refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return httpError(http.StatusBadRequest, "refresh_token is required")
	}

	pair, err := s.authSvc.RefreshTokenPair(req.RefreshToken)
	if err != nil {
		return httpError(http.StatusUnauthorized, "invalid or expired refresh token")
	}

	return c.JSON(http.StatusOK, pair)
}

func (s *Server) startCompare(c echo.Context) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "invalid request body")
	}
	if req.SourceConnID == "" || req.TargetConnID == "" {
		return httpError(http.StatusBadRequest, "source_conn_id and target_conn_id are required")
	}

	requestedBy := "system"
	if user := auth.GetUser(c); user != nil {
		requestedBy = user.Email
	}

	args := jobqueue.CompareJobArgs{
		SessionName:  req.SessionName,
		SourceConnID: req.SourceConnID,
		TargetConnID: req.TargetConnID,
		RequestedBy:  requestedBy,
		AutoResolve:  req.AutoResolve,
	}
	if err := s.queue.QueueCompareJob(c.Request().Context(), args); err != nil {
		log.Error().Err(err).
			Str("source", req.SourceConnID).
			Str("target", req.TargetConnID).
			Msg("failed to enqueue comparison")
		return httpError(http.StatusInternalServerError, "failed to enqueue comparison")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "queued",
		"source": req.SourceConnID,
		"target": req.TargetConnID,
	})
}

func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.sessions.ListSessions(c.Request().Context())
	if err != nil {
		return httpError(http.StatusInternalServerError, "failed to list sessions")
	}

	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpError(http.StatusNotFound, "session not found")
		}
		return httpError(http.StatusInternalServerError, "failed to load session")
	}

	return c.JSON(http.StatusOK, sess)
}

func (s *Server) getConflicts(c echo.Context) error {
	sess, err := s.sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpError(http.StatusNotFound, "session not found")
		}
		return httpError(http.StatusInternalServerError, "failed to load session")
	}

	return c.JSON(http.StatusOK, sess.Conflicts)
}

func (s *Server) resolveAuto(c echo.Context) error {
	outcomes, err := s.sessions.ResolveAutomatically(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return httpError(http.StatusNotFound, "session not found")
		case errors.Is(err, session.ErrSessionTerminal),
			errors.Is(err, session.ErrAutoResolutionDisabled):
			return httpError(http.StatusConflict, "%v", err)
		default:
			return httpError(http.StatusInternalServerError, "automatic resolution failed")
		}
	}

	return c.JSON(http.StatusOK, outcomes)
}

func (s *Server) getScript(c echo.Context) error {
	sess, err := s.sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpError(http.StatusNotFound, "session not found")
		}
		return httpError(http.StatusInternalServerError, "failed to load session")
	}

	sql, err := s.generator.Generate(sess, sess.Resolutions)
	if err != nil {
		return httpError(http.StatusInternalServerError, "failed to generate script")
	}

	return c.Blob(http.StatusOK, "application/sql", []byte(sql))
}
