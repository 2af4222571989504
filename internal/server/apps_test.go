package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omochice/sockjs-server/internal/server"
)

func TestAmplify(t *testing.T) {
	h := server.NewHandler(server.DefaultOptions(), server.Amplify)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	tests := []struct {
		input string
		want  int
	}{
		{"3", 8},
		{"0", 1},
		{"25", 2},
		{"bogus", 2},
	}

	do(t, http.MethodPost, srv.URL+"/000/amp/xhr", nil)
	for _, tt := range tests {
		resp, err := http.Post(srv.URL+"/000/amp/xhr_send", "text/plain", strings.NewReader(`["`+tt.input+`"]`))
		if err != nil {
			t.Fatalf("Failed to send: %v", err)
		}
		resp.Body.Close()

		_, body := do(t, http.MethodPost, srv.URL+"/000/amp/xhr", nil)
		want := `a["` + strings.Repeat("x", tt.want) + "\"]\n"
		if body != want {
			t.Errorf("amplify %s = %q, want %q", tt.input, body, want)
		}
	}
}

func TestCloseImmediately(t *testing.T) {
	h := server.NewHandler(server.DefaultOptions(), server.CloseImmediately)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	_, body := do(t, http.MethodPost, srv.URL+"/000/cls/xhr_streaming", nil)
	want := strings.Repeat("h", 2048) + "\n" + "o\n" + "c[3000,\"Go away!\"]\n"
	if body != want {
		t.Errorf("body ends with %q", body[2049:])
	}
}

func TestTicker(t *testing.T) {
	h := server.NewHandler(server.DefaultOptions(), server.Ticker(20*time.Millisecond))
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	do(t, http.MethodPost, srv.URL+"/000/tick/xhr", nil)
	time.Sleep(50 * time.Millisecond)

	_, body := do(t, http.MethodPost, srv.URL+"/000/tick/xhr", nil)
	if !strings.HasPrefix(body, `a["tick!"`) {
		t.Errorf("poll = %q, want ticks", body)
	}
}

func TestBroadcast_RemovesEndedSockets(t *testing.T) {
	b := server.NewBroadcast()
	h := server.NewHandler(server.DefaultOptions(), b.Handle)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	do(t, http.MethodPost, srv.URL+"/000/one/xhr", nil)
	do(t, http.MethodPost, srv.URL+"/000/two/xhr", nil)
	if n := b.Len(); n != 2 {
		t.Fatalf("Len() = %d, want 2", n)
	}

	h.Close()
	if n := b.Len(); n != 0 {
		t.Errorf("Len() = %d after close, want 0", n)
	}
}

func TestDemoApps(t *testing.T) {
	apps := server.DemoApps(server.DefaultOptions())
	defer func() {
		for _, h := range apps {
			h.Close()
		}
	}()

	for _, prefix := range []string{"/echo", "/close", "/disabled_websocket_echo", "/ticker", "/amplify", "/broadcast", "/cookie_needed_echo"} {
		if apps[prefix] == nil {
			t.Errorf("missing app %s", prefix)
		}
	}

	srv := httptest.NewServer(apps["/cookie_needed_echo"])
	defer srv.Close()
	resp, _ := do(t, http.MethodPost, srv.URL+"/000/ck/xhr", nil)
	if got := resp.Header.Get("Set-Cookie"); got != "JSESSIONID=dummy; Path=/" {
		t.Errorf("Set-Cookie = %q", got)
	}

	srv2 := httptest.NewServer(apps["/disabled_websocket_echo"])
	defer srv2.Close()
	resp, _ = do(t, http.MethodGet, srv2.URL+"/000/nows/websocket", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("websocket status = %d, want 404", resp.StatusCode)
	}
}
