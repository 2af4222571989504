package transport

import (
	"net/http"
	"regexp"
)

var invalidCallback = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// callback returns the validated "c" query parameter of htmlfile and jsonp
// requests, writing the error response when it is missing or unsafe.
func callback(w http.ResponseWriter, r *http.Request) (string, bool) {
	c := r.URL.Query().Get("c")
	if c == "" {
		Error(w, http.StatusInternalServerError, `"callback" parameter required`)
		return "", false
	}
	if invalidCallback.MatchString(c) {
		Error(w, http.StatusInternalServerError, `invalid "callback" parameter`)
		return "", false
	}
	return c, true
}

func (t *Transports) serveHTMLFile(w http.ResponseWriter, r *http.Request) {
	cb, ok := callback(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	SetNoCache(w)
	SetJSESSIONID(w, r, t.cfg.InsertJSESSIONID)
	t.serveReceiver(w, r, htmlFileFramer{callback: cb})
}
