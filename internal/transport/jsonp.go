package transport

import (
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
)

func (t *Transports) serveJSONP(w http.ResponseWriter, r *http.Request) {
	cb, ok := callback(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
	SetNoCache(w)
	SetJSESSIONID(w, r, t.cfg.InsertJSESSIONID)
	t.serveReceiver(w, r, jsonpFramer{callback: cb})
}

func (t *Transports) serveJSONPSend(w http.ResponseWriter, r *http.Request) {
	SetJSESSIONID(w, r, t.cfg.InsertJSESSIONID)

	s, ok := t.existingSession(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Failed to read jsonp_send body: %v", err)
		return
	}
	// Form posts carry the payload in the "d" field.
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			Error(w, http.StatusInternalServerError, "Payload expected.")
			return
		}
		body = []byte(form.Get("d"))
	}
	if !t.deliver(w, r, s, body) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Write([]byte("ok"))
}
