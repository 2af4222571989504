package transport

import "net/http"

func (t *Transports) serveEventSource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=UTF-8")
	SetNoCache(w)
	SetJSESSIONID(w, r, t.cfg.InsertJSESSIONID)
	SetCORS(w, r)
	t.serveReceiver(w, r, eventSourceFramer{})
}
