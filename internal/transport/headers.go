package transport

import (
	"net/http"
	"time"
)

const oneYear = 365 * 24 * time.Hour

// SetNoCache forbids caching of the response.
func SetNoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
}

// SetCache allows caching of the response for a year.
func SetCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "public,max-age=31536000")
	w.Header().Set("Expires", time.Now().Add(oneYear).UTC().Format(http.TimeFormat))
}

// SetCORS echoes the request origin, or "*" when there is none.
func SetCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		origin = "*"
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	if headers := r.Header.Get("Access-Control-Request-Headers"); headers != "" {
		h.Set("Access-Control-Allow-Headers", headers)
	}
}

// SetJSESSIONID sets the affinity cookie used by sticky load balancers,
// keeping the value the client already has.
func SetJSESSIONID(w http.ResponseWriter, r *http.Request, enabled bool) {
	if !enabled {
		return
	}
	value := "dummy"
	if c, err := r.Cookie("JSESSIONID"); err == nil && c.Value != "" {
		value = c.Value
	}
	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: value, Path: "/"})
}

// OptionsHandler answers CORS preflight requests with the allowed methods.
// It never touches session state.
func OptionsHandler(insertJSESSIONID bool, methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCache(w)
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Max-Age", "31536000")
		SetCORS(w, r)
		SetJSESSIONID(w, r, insertJSESSIONID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// Error writes a plain text error body the way SockJS clients expect.
func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
