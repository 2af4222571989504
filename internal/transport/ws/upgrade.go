package ws

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gobwas/httphead"
)

var (
	// ErrNotWebSocket is returned when the Upgrade header does not ask for a
	// websocket.
	ErrNotWebSocket = errors.New(`Can "Upgrade" only to "WebSocket".`)
	// ErrNotUpgrade is returned when the Connection header lacks "Upgrade".
	ErrNotUpgrade = errors.New(`"Connection" must be "Upgrade".`)
)

// CheckUpgrade verifies the headers of a websocket handshake before the
// connection is hijacked, so that bad requests get a plain HTTP answer.
func CheckUpgrade(r *http.Request) error {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return ErrNotWebSocket
	}
	upgrade := false
	for _, v := range r.Header.Values("Connection") {
		httphead.ScanTokens([]byte(v), func(token []byte) bool {
			if bytes.EqualFold(token, []byte("upgrade")) {
				upgrade = true
				return false
			}
			return true
		})
	}
	if !upgrade {
		return ErrNotUpgrade
	}
	return nil
}
