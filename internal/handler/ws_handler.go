package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
	ws "github.com/stemsi/exstem-portal/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
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

// WSHandler streams session events and accepts exam actions over a WebSocket.
type WSHandler struct {
	portal   *service.PortalService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(portal *service.PortalService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		portal:   portal,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exam/stream
// Pushes state changes and countdown ticks; accepts select/next/prev/goto/submit.
func (h *WSHandler) ExamStream(c *gin.Context) {
	ctrl := middleware.GetController(c)

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.pump(ctx, conn, events)

	h.log.Info().Msg("exam stream connected")
	_ = conn.WriteTyped(ws.SnapshotResponse{Event: ws.EventState, Snapshot: ctrl.Snapshot()})

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("unexpected close")
			} else {
				h.log.Debug().Msg("exam stream closed")
			}
			return
		}
		h.dispatch(conn, ctrl, &msg)
	}
}

// pump forwards controller events until ctx ends or the subscription closes.
func (h *WSHandler) pump(ctx context.Context, conn *ws.Conn, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			var err error
			if evt.Type == session.EventTick {
				err = conn.WriteTyped(ws.TickResponse{
					Event:            ws.EventTick,
					RemainingSeconds: evt.Snapshot.RemainingSeconds,
					TimeExpired:      evt.Snapshot.TimeExpired,
				})
			} else {
				err = conn.WriteTyped(ws.SnapshotResponse{Event: ws.EventState, Snapshot: evt.Snapshot})
			}
			if err != nil {
				h.log.Debug().Err(err).Msg("exam stream write failed")
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(conn *ws.Conn, ctrl *session.Controller, msg *ws.RequestPayload) {
	var err error
	switch msg.Action {
	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	case ws.ActionSelect:
		if msg.OptionIndex == nil {
			_ = conn.WriteError("VALIDATION_ERROR", "option_index is required")
			return
		}
		err = ctrl.SelectAnswer(*msg.OptionIndex)
	case ws.ActionNext:
		err = ctrl.Next()
	case ws.ActionPrev:
		err = ctrl.Prev()
	case ws.ActionGoTo:
		if msg.Index == nil {
			_ = conn.WriteError("VALIDATION_ERROR", "index is required")
			return
		}
		err = ctrl.GoTo(*msg.Index)
	case ws.ActionSubmit:
		rep, serr := h.portal.Submit(context.Background(), ctrl)
		if serr == nil {
			_ = conn.WriteTyped(ws.ReportResponse{Event: ws.EventReport, Report: rep})
			return
		}
		err = serr
	default:
		h.log.Warn().Str("action", string(msg.Action)).Msg("unknown action")
		_ = conn.WriteError("INVALID_PAYLOAD", "unknown action: "+string(msg.Action))
		return
	}

	if err != nil {
		_, code := errorStatus(err)
		_ = conn.WriteError(string(code), err.Error())
	}
}
