// Realtime WebSocket endpoint.
//
//   - GET /realtime?token=<access token>   (or Authorization: Bearer)
//
// The token is checked before the upgrade so failures are plain JSON 401s.
// After the upgrade the connection is handed to realtime.Serve, which runs
// the subscribe/unsubscribe/ping protocol until the peer leaves.
package handlers

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/realtime"
)

// Realtime godoc
// @ID          realtime
// @Summary     Realtime change feed (WebSocket)
// @Description Upgrades to a WebSocket carrying JSON frames: subscribe, unsubscribe, ping; server sends event, ack, error, pong, system.
// @Tags        Realtime
// @Param       token  query  string  false  "Access token when no Authorization header can be sent"
// @Success     101
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /realtime [get]
func (h *Handlers) Realtime(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		tok := c.Query("token")
		if tok == "" || h.tokens == nil {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
			return
		}
		claims, err := h.tokens.Parse(tok)
		if err != nil {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
			return
		}
		uid = claims.Subject
		middleware.SetUser(c, uid, claims.Username)
	}

	// server read/write timeouts would otherwise cut the socket
	rc := http.NewResponseController(c.Writer)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(c.Writer, c.Request, h.wsAccept)
	if err != nil {
		// Accept has already written the HTTP error.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket upgrade failed")
		c.Abort()
		return
	}
	defer conn.CloseNow()

	lg := middleware.LoggerFrom(c)
	lg.Debug().Str("user_id", uid).Msg("realtime session opened")
	err = realtime.Serve(c.Request.Context(), conn, h.hub, uid, h.rtOpts)
	if err != nil {
		lg.Info().Err(err).Str("user_id", uid).Msg("realtime session ended")
		conn.Close(websocket.StatusInternalError, "session error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
