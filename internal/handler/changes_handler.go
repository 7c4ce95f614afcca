package handler

import (
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/pkg/changefeed"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

// StreamTables lists the tables a client may watch.
var StreamTables = []string{"appointments", "evaluations", "notifications", "announcements", "events", "availability", "profiles", "users"}

// ChangesHandler streams table change signals as server-sent events.
type ChangesHandler struct {
	feed      changefeed.Feed
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewChangesHandler constructs the handler. A non-positive heartbeat defaults to 25s.
func NewChangesHandler(feed changefeed.Feed, heartbeat time.Duration, logger *zap.Logger) *ChangesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &ChangesHandler{feed: feed, heartbeat: heartbeat, logger: logger}
}

// Stream godoc
// @Summary Subscribe to table change signals
// @Description Staff see every change. Other users only see changes addressed to them or to everyone.
// @Tags Changes
// @Produce text/event-stream
// @Param tables query string false "Comma separated table names"
// @Success 200 {string} string "event stream"
// @Router /changes [get]
func (h *ChangesHandler) Stream(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tables, err := parseTables(c.Query("tables"))
	if err != nil {
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	changes, cancel, err := h.feed.Subscribe(ctx, tables...)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe"))
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	h.logger.Debug("change stream opened", zap.String("user_id", claims.UserID), zap.Strings("tables", tables))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-changes:
			if !ok {
				return false
			}
			if claims.Role.IsStaff() || change.VisibleTo(claims.UserID) {
				c.SSEvent("change", change.Signal())
			}
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
			return true
		}
	})
}

func parseTables(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return StreamTables, nil
	}
	allowed := make(map[string]struct{}, len(StreamTables))
	for _, t := range StreamTables {
		allowed[t] = struct{}{}
	}
	var tables []string
	for _, part := range strings.Split(raw, ",") {
		table := strings.ToLower(strings.TrimSpace(part))
		if table == "" {
			continue
		}
		if _, ok := allowed[table]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown table "+table)
		}
		tables = append(tables, table)
	}
	if len(tables) == 0 {
		return StreamTables, nil
	}
	return tables, nil
}
