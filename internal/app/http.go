package app

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"editdesk/api/internal/auth"
	"editdesk/api/internal/handshake"
	"editdesk/api/internal/rbac"
	"editdesk/api/internal/search"
	"editdesk/api/internal/store"
)

const (
	requestIDKey = "request_id"
	claimsKey    = "frame_claims"

	headerHostKey = "X-Editdesk-Host-Key"

	maxMessageBytes   = 64 << 10
	streamKeepalive   = 25 * time.Second
	streamBufferDepth = 32
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	limiter    *keyedLimiter
	echo       *echo.Echo
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		limiter:    newKeyedLimiter(service.cfg.CreateRatePerMinute, service.cfg.CreateRateBurst),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(s.requestLog)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{corsOrigin},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID, headerHostKey},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))

	s.echo = e
	s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) routes() {
	e := s.echo
	e.Match([]string{http.MethodGet, http.MethodHead}, "/api/health", s.health)
	e.Match([]string{http.MethodGet, http.MethodHead}, "/api/ready", s.ready)

	hs := e.Group("/api/handshake")
	hs.POST("/resolve", s.resolveHandshake)
	hs.POST("/windows/:window/messages", s.postWindowMessage)
	hs.GET("/windows/:window/messages", s.streamWindowMessages)
	hs.GET("/context", s.frameContext, s.requireFrame)

	api := e.Group("/api")
	api.GET("/requests", s.listRequests, s.requireFrame)
	api.POST("/requests", s.createRequest, s.requireFrame)
	api.GET("/requests/:id", s.getRequest, s.requireFrame)
	api.PATCH("/requests/:id/status", s.setRequestStatus, s.requireFrame)
	api.POST("/requests/:id/replies", s.addReply, s.requireFrame)
	api.GET("/pages", s.listPages, s.requireFrame)
	api.GET("/search", s.search, s.requireFrame)
	api.GET("/export", s.export, s.requireFrame)

	api.GET("/comments", s.listComments, s.requireFrame)
	api.POST("/comments", s.createComment, s.requireFrame)
	api.GET("/comments/:id/replies", s.listCommentReplies, s.requireFrame)
	api.PATCH("/comments/:id/status", s.setCommentStatus, s.requireFrame)
	api.DELETE("/comments/:id", s.deleteComment, s.requireFrame)

	api.GET("/projects", s.listProjects, s.requireFrame)
	api.POST("/projects", s.createProject, s.requireFrame)
	api.GET("/projects/:id", s.getProject, s.requireFrame)
	api.PATCH("/projects/:id", s.updateProject, s.requireFrame)
	api.DELETE("/projects/:id", s.deleteProject, s.requireFrame)
}

func (s *HTTPServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) ready(c echo.Context) error {
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	report := s.service.Readiness(ctx)
	status, statusCode := "ready", http.StatusOK
	if !report.Ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, map[string]any{
		"ok":     report.Ready,
		"status": status,
		"checks": report.Checks,
	})
}

// requireFrame authenticates the frame token and stores its claims on the
// echo context. The project id in the token is the tenant scope of every
// handler behind it.
func (s *HTTPServer) requireFrame(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c.Request())
		if token == "" {
			return unauthorizedError("Missing frame token")
		}
		claims, err := auth.ParseToken([]byte(s.service.cfg.JWTSecret), token)
		if errors.Is(err, auth.ErrExpiredToken) {
			return unauthorizedError("Frame token expired")
		}
		if err != nil {
			return unauthorizedError("Invalid frame token")
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

func frameClaims(c echo.Context) auth.Claims {
	claims, _ := c.Get(claimsKey).(auth.Claims)
	return claims
}

func authorize(c echo.Context, action rbac.Action) (auth.Claims, error) {
	claims := frameClaims(c)
	if !rbac.Can(claims.FrameRole(), action) {
		log.Warn().
			Str("request_id", requestID(c)).
			Str("project_id", claims.ProjectID).
			Str("role", claims.Role).
			Str("action", string(action)).
			Msg("permission denied")
		return auth.Claims{}, forbiddenError(string(action))
	}
	return claims, nil
}

func (s *HTTPServer) resolveHandshake(c echo.Context) error {
	var body ResolveHandshakeInput
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	body.Trusted = s.hostKeyMatches(c.Request().Header.Get(headerHostKey))
	result, err := s.service.ResolveHandshake(c.Request().Context(), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"projectId": result.Context.ProjectID,
		"role":      nullableRole(result.Role),
		"subject":   result.Subject,
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
	})
}

func (s *HTTPServer) hostKeyMatches(presented string) bool {
	expected := s.service.cfg.HostKey
	presented = strings.TrimSpace(presented)
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

func (s *HTTPServer) frameContext(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	response := map[string]any{
		"projectId": claims.ProjectID,
		"role":      nullableRole(claims.FrameRole()),
		"subject":   claims.Subject,
	}
	if claims.ExpiresAt != nil {
		response["expiresAt"] = claims.ExpiresAt.Time
	}
	return c.JSON(http.StatusOK, response)
}

func (s *HTTPServer) postWindowMessage(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxMessageBytes))
	if err != nil {
		return invalidBody(err)
	}
	delivered, err := s.service.PostWindowMessage(c.Request().Context(), c.Param("window"), payload)
	if err != nil {
		return err
	}
	if !delivered {
		return c.JSON(http.StatusOK, map[string]any{"ignored": true})
	}
	return c.JSON(http.StatusAccepted, map[string]any{"delivered": true})
}

// streamWindowMessages relays a window's messages as server-sent events until
// the client goes away. Messages are dropped when the client falls behind.
func (s *HTTPServer) streamWindowMessages(c echo.Context) error {
	ctx := c.Request().Context()
	window := c.Param("window")
	events := make(chan []byte, streamBufferDepth)

	unsubscribe, err := s.service.SubscribeWindow(ctx, window, func(msg handshake.Message) {
		payload, err := handshake.Encode(msg)
		if err != nil {
			return
		}
		select {
		case events <- payload:
		default:
			log.Warn().Str("window", window).Str("type", msg.Type()).Msg("stream client behind, message dropped")
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	res := c.Response()
	_ = http.NewResponseController(res.Writer).SetWriteDeadline(time.Time{})
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-events:
			if _, err := fmt.Fprintf(res, "event: message\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(res, ": keepalive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (s *HTTPServer) listRequests(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	items, err := s.service.ListRequests(c.Request().Context(), store.RequestFilter{
		ProjectID: claims.ProjectID,
		PageURL:   c.QueryParam("pageUrl"),
		Status:    c.QueryParam("status"),
		Search:    c.QueryParam("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"requests": presentRequests(items)})
}

func (s *HTTPServer) createRequest(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionSubmit)
	if err != nil {
		return err
	}
	if !s.limiter.Allow(claims.ProjectID + "|" + c.RealIP()) {
		return rateLimitedError()
	}
	var body CreateRequestInput
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	body.ProjectID = claims.ProjectID
	if strings.TrimSpace(body.SubmittedBy) == "" {
		body.SubmittedBy = claims.Subject
	}
	created, err := s.service.CreateRequest(c.Request().Context(), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, presentRequest(created))
}

func (s *HTTPServer) getRequest(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	item, err := s.service.GetRequest(c.Request().Context(), claims.ProjectID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presentRequest(item))
}

func (s *HTTPServer) setRequestStatus(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionTriage)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	updated, err := s.service.SetStatus(c.Request().Context(), claims.ProjectID, c.Param("id"), body.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presentRequest(updated))
}

func (s *HTTPServer) addReply(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionReply)
	if err != nil {
		return err
	}
	var body ReplyInput
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	if role := claims.FrameRole(); role != "" {
		body.From = string(role)
	}
	updated, err := s.service.AddReply(c.Request().Context(), claims.ProjectID, c.Param("id"), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, presentRequest(updated))
}

func (s *HTTPServer) listPages(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	pages, err := s.service.ListPages(c.Request().Context(), claims.ProjectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"pages": pages})
}

func (s *HTTPServer) search(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	response, err := s.service.Search(c.Request().Context(), claims.ProjectID, search.Query{
		Text:    c.QueryParam("q"),
		Status:  c.QueryParam("status"),
		PageURL: c.QueryParam("pageUrl"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response)
}

func (s *HTTPServer) export(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	publish, _ := strconv.ParseBool(c.QueryParam("publish"))
	out, err := s.service.Export(c.Request().Context(), claims.ProjectID, ExportInput{
		PageURL: c.QueryParam("pageUrl"),
		Status:  c.QueryParam("status"),
		Format:  c.QueryParam("format"),
		Publish: publish,
	})
	if err != nil {
		return err
	}
	if out.Published != nil {
		return c.JSON(http.StatusCreated, out.Published)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", out.Result.Filename))
	return c.Blob(http.StatusOK, out.Result.MimeType, out.Result.Data)
}

func (s *HTTPServer) listComments(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	items, err := s.service.ListComments(c.Request().Context(), claims.ProjectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"comments": presentComments(items)})
}

func (s *HTTPServer) listCommentReplies(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionRead)
	if err != nil {
		return err
	}
	items, err := s.service.ListCommentReplies(c.Request().Context(), claims.ProjectID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"comments": presentComments(items)})
}

func (s *HTTPServer) createComment(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionComment)
	if err != nil {
		return err
	}
	var body CommentInput
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	if claims.Subject != "" {
		body.UserID = claims.Subject
	}
	created, err := s.service.CreateComment(c.Request().Context(), claims.ProjectID, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, presentComment(created))
}

func (s *HTTPServer) setCommentStatus(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionTriage)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	updated, err := s.service.SetCommentStatus(c.Request().Context(), claims.ProjectID, c.Param("id"), body.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presentComment(updated))
}

func (s *HTTPServer) deleteComment(c echo.Context) error {
	claims, err := authorize(c, rbac.ActionTriage)
	if err != nil {
		return err
	}
	if err := s.service.DeleteComment(c.Request().Context(), claims.ProjectID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// designer returns the token subject for project management routes.
func designer(c echo.Context) (string, error) {
	claims, err := authorize(c, rbac.ActionManage)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", forbiddenError(string(rbac.ActionManage))
	}
	return claims.Subject, nil
}

func (s *HTTPServer) listProjects(c echo.Context) error {
	designerID, err := designer(c)
	if err != nil {
		return err
	}
	items, err := s.service.ListProjects(c.Request().Context(), designerID)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, presentProject(item))
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": out})
}

func (s *HTTPServer) createProject(c echo.Context) error {
	designerID, err := designer(c)
	if err != nil {
		return err
	}
	var body ProjectInput
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	created, err := s.service.CreateProject(c.Request().Context(), designerID, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, presentProject(created))
}

func (s *HTTPServer) getProject(c echo.Context) error {
	designerID, err := designer(c)
	if err != nil {
		return err
	}
	item, err := s.service.GetProject(c.Request().Context(), designerID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presentProject(item))
}

func (s *HTTPServer) updateProject(c echo.Context) error {
	designerID, err := designer(c)
	if err != nil {
		return err
	}
	var body ProjectInput
	if err := decodeBody(c.Request(), &body); err != nil {
		return invalidBody(err)
	}
	updated, err := s.service.UpdateProject(c.Request().Context(), designerID, c.Param("id"), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presentProject(updated))
}

func (s *HTTPServer) deleteProject(c echo.Context) error {
	designerID, err := designer(c)
	if err != nil {
		return err
	}
	if err := s.service.DeleteProject(c.Request().Context(), designerID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// requestLog assigns the request id and writes one access log line per
// request, after errors have been rendered.
func (s *HTTPServer) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := req.Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = randomRequestID()
		}
		c.Set(requestIDKey, id)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		c.Response().Header().Set("Cache-Control", "no-store")

		started := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		log.Info().
			Str("request_id", id).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", c.Response().Status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
		return nil
	}
}

func (s *HTTPServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID(c)).Str("code", code).Msg("request failed")
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = writeError(c, status, code, message, details)
}

func requestID(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeError(c echo.Context, status int, code, message string, details any) error {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	return c.JSON(status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case http.StatusNotFound:
			return httpErr.Code, "NOT_FOUND", "Not found", nil
		case http.StatusMethodNotAllowed:
			return httpErr.Code, "METHOD_NOT_ALLOWED", "Method not allowed", nil
		case http.StatusUnauthorized:
			return httpErr.Code, "UNAUTHORIZED", "Unauthorized", nil
		default:
			return httpErr.Code, "HTTP_ERROR", http.StatusText(httpErr.Code), nil
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
