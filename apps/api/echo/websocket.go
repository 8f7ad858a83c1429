package echoapi

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
)

const (
	wsBufferSize   = 64 * 1024
	wsWriteWait    = 5 * time.Second
	wsMaxFrameSize = 1 << 20
)

func registerLandmarkStream(g *echo.Group, api *drowsinessAPI) {
	g.GET("/drowsiness/landmarks/:session_id", api.streamLandmarks)
}

// streamLandmarks upgrades the connection and writes every landmark frame of the session
// until the client leaves or the session starts finishing.
func (api *drowsinessAPI) streamLandmarks(ctx echo.Context) error {
	sessionID := ctx.Param("session_id")
	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		api.log.Warn("landmark stream upgrade failed", "session", sessionID, "error", err)
		return nil // the upgrader already replied
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(wsMaxFrameSize)

	in, err := api.svc.OpenIngestor(ctx.Request().Context(), sessionID)
	if err != nil {
		code := websocket.ClosePolicyViolation
		if core.KindOf(err) == core.KindInternal {
			code = websocket.CloseInternalServerErr
			api.log.Error("could not open landmark ingestor", err, "session", sessionID)
		}
		closeWith(conn, code, appErrorMessage(err))
		return nil
	}
	defer func() {
		if err := in.Close(); err != nil {
			api.log.Error("could not close landmark ingestor", err, "session", sessionID)
		}
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-in.Done():
			closeWith(conn, websocket.CloseNormalClosure, "session finishing")
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	api.readLandmarks(conn, in, sessionID)
	return nil
}

func (api *drowsinessAPI) readLandmarks(conn *websocket.Conn, in *drowsiness.Ingestor, sessionID string) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-in.Done():
				default:
					api.log.Warn("landmark stream closed", "session", sessionID, "error", err)
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply, err := in.Handle(data)
		if err != nil {
			api.log.Error("could not store landmarks", err, "session", sessionID)
			closeWith(conn, websocket.CloseInternalServerErr, "could not store landmarks")
			return
		}
		if reply != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err = conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

func appErrorMessage(err error) string {
	var appErr *core.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
