package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/config"
	"github.com/preplab/proctord/internal/middleware"
	"github.com/preplab/proctord/internal/model"
	"github.com/preplab/proctord/internal/service"
	ws "github.com/preplab/proctord/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the real-time session stream: answer autosave and
// security event reporting during an active attempt.
type WSHandler struct {
	rdb         *redis.Client
	testService *service.TestService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, testService *service.TestService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:         rdb,
		testService: testService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/tests/:test_id/stream
// Upgrades to WebSocket for answer autosave and violation reporting.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test ID"})
		return
	}

	// The test must be published and within its window before streaming.
	if _, err := h.testService.GetStudentDefinition(c.Request.Context(), testID, claims.UserID); err != nil {
		h.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Stream refused")
		c.JSON(http.StatusForbidden, gin.H{"error": "test not available"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID
	answersKey := config.CacheKey.StudentAnswersKey(testID.String(), studentID)
	violationsKey := config.CacheKey.StudentViolationCountKey(testID.String(), studentID)

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("test_id", testID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, answersKey, studentID, testID, &msg)
		case ws.ActionViolation:
			h.handleViolation(conn, wsLog, violationsKey, studentID, testID, &msg)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave caches a single answer in Redis and queues it for
// database persistence. The raw JSON answer is stored as-is so the
// scalar-vs-array shape survives untouched.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, answersKey string, studentID int, testID uuid.UUID, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.QID == "" || len(msg.Answer) == 0 {
		ws.WriteError(conn, "q_id and ans are required")
		return
	}

	// SECURITY: QID must be a well-formed UUID to prevent Redis key injection.
	if _, err := uuid.Parse(msg.QID); err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	if err := h.rdb.HSet(ctx, answersKey, msg.QID, string(msg.Answer)).Err(); err != nil {
		h.log.Error().Err(err).Int("student_id", studentID).Msg("Autosave Redis error")
		ws.WriteError(conn, "save failed")
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"student_id": studentID,
		"test_id":    testID.String(),
		"q_id":       msg.QID,
		"answer":     msg.Answer,
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)

	ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

// handleViolation records one security event: increments the live
// counter for the proctor view and queues the event for persistence.
func (h *WSHandler) handleViolation(conn *websocket.Conn, wsLog zerolog.Logger, violationsKey string, studentID int, testID uuid.UUID, msg *ws.RequestPayload) {
	ctx := context.Background()

	vt := model.ViolationType(msg.Type)
	if !vt.Valid() {
		ws.WriteError(conn, "unknown violation type: "+msg.Type)
		return
	}

	seq, err := h.rdb.Incr(ctx, violationsKey).Result()
	if err != nil {
		wsLog.Error().Err(err).Msg("Violation counter Redis error")
		ws.WriteError(conn, "record failed")
		return
	}

	at := msg.At
	if at == 0 {
		at = time.Now().Unix()
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"student_id":     studentID,
		"test_id":        testID.String(),
		"violation_type": string(vt),
		"seq":            msg.Seq,
		"at":             at,
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, payload)

	wsLog.Warn().
		Str("type", string(vt)).
		Int("seq", msg.Seq).
		Int64("count", seq).
		Msg("Security violation reported")

	ws.WriteTyped(conn, ws.ViolationResponse{Event: ws.EventRecorded, Seq: msg.Seq})
}
