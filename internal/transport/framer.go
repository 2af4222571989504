package transport

import (
	"bytes"
	"strings"

	"github.com/omochice/sockjs-server/pkg/protocol"
)

// framer is the wire format of an HTTP receiving transport: the prelude that
// completes its handshake and the wrapping of each SockJS frame.
type framer interface {
	name() string
	prelude() []byte
	appendFrame(dst []byte, frame string) []byte
	// streaming reports whether one response carries many frames.
	streaming() bool
}

// xhrFramer writes newline terminated frames, for xhr and xhr_streaming.
type xhrFramer struct {
	stream bool
}

// The 2KiB prelude gets old browsers past their buffering of partial
// responses.
var xhrStreamingPrelude = append(bytes.Repeat([]byte{'h'}, 2048), '\n')

func (f xhrFramer) name() string {
	if f.stream {
		return "xhr_streaming"
	}
	return "xhr"
}

func (f xhrFramer) prelude() []byte {
	if f.stream {
		return xhrStreamingPrelude
	}
	return nil
}

func (f xhrFramer) appendFrame(dst []byte, frame string) []byte {
	dst = append(dst, frame...)
	return append(dst, '\n')
}

func (f xhrFramer) streaming() bool { return f.stream }

// eventSourceFramer writes frames as server-sent events.
type eventSourceFramer struct{}

func (eventSourceFramer) name() string    { return "eventsource" }
func (eventSourceFramer) prelude() []byte { return []byte("\r\n") }
func (eventSourceFramer) streaming() bool { return true }

func (eventSourceFramer) appendFrame(dst []byte, frame string) []byte {
	dst = append(dst, "data: "...)
	dst = append(dst, frame...)
	return append(dst, "\r\n\r\n"...)
}

// htmlFileFramer streams script tags into a hidden iframe.
type htmlFileFramer struct {
	callback string
}

const htmlFileTemplate = `<!doctype html>
<html><head>
  <meta http-equiv="X-UA-Compatible" content="IE=edge" />
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
</head><body><h2>Don't panic!</h2>
  <script>
    document.domain = document.domain;
    var c = parent.{{ callback }};
    c.start();
    function p(d) {c.message(d);};
    window.onload = function() {c.stop();};
  </script>`

func (htmlFileFramer) name() string    { return "htmlfile" }
func (htmlFileFramer) streaming() bool { return true }

// prelude pads the page to 1KiB so that browsers start rendering it.
func (f htmlFileFramer) prelude() []byte {
	page := strings.Replace(htmlFileTemplate, "{{ callback }}", f.callback, 1)
	if pad := 1024 - len(page); pad > 0 {
		page += strings.Repeat(" ", pad)
	}
	return []byte(page + "\r\n\r\n")
}

func (htmlFileFramer) appendFrame(dst []byte, frame string) []byte {
	dst = append(dst, "<script>\np("...)
	dst = append(dst, protocol.Quote(frame)...)
	return append(dst, ");\n</script>\r\n"...)
}

// jsonpFramer wraps a single frame in a callback invocation.
type jsonpFramer struct {
	callback string
}

func (jsonpFramer) name() string    { return "jsonp" }
func (jsonpFramer) prelude() []byte { return nil }
func (jsonpFramer) streaming() bool { return false }

func (f jsonpFramer) appendFrame(dst []byte, frame string) []byte {
	dst = append(dst, f.callback...)
	dst = append(dst, '(')
	dst = append(dst, protocol.Quote(frame)...)
	return append(dst, ");\r\n"...)
}
