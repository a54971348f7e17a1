package devserver

import (
	"bytes"
	"net/http"
)

const (
	pathPrefix = "/__assetbuilder/"
	pathEvents = pathPrefix + "events"
	pathWS     = pathPrefix + "ws"
	pathClient = pathPrefix + "client.js"
	pathStatus = pathPrefix + "status"
)

var clientTag = []byte(`<script src="` + pathClient + `"></script>`)

// clientScript applies push messages in the browser. It prefers the
// WebSocket channel and falls back to server-sent events.
const clientScript = `(function () {
  if (window.__assetbuilder) { return; }
  window.__assetbuilder = true;
  var overlay;
  function showError(p) {
    if (!overlay) {
      overlay = document.createElement("pre");
      overlay.style.cssText = "position:fixed;inset:0;margin:0;padding:1em;z-index:2147483647;" +
        "background:rgba(20,0,0,.9);color:#fbb;font:13px monospace;white-space:pre-wrap;overflow:auto";
      document.body.appendChild(overlay);
    }
    overlay.textContent = (p && p.error) || "build failed";
  }
  function clearError() {
    if (overlay) { overlay.remove(); overlay = null; }
  }
  function base(href) {
    return (href || "").split("?")[0].split("/").pop();
  }
  function swapStyles(p, gen) {
    var removed = p.removed || [];
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var seen = {};
    links.forEach(function (l) {
      var name = base(l.getAttribute("href"));
      if (p.files.indexOf(name) >= 0) {
        l.href = l.href.split("?")[0] + "?v=" + gen;
        seen[name] = true;
      } else if (removed.indexOf(name) >= 0) {
        l.remove();
      }
    });
    p.files.forEach(function (f) {
      if (seen[f]) { return; }
      var l = document.createElement("link");
      l.rel = "stylesheet";
      l.href = f + "?v=" + gen;
      document.head.appendChild(l);
    });
  }
  function swapScripts(p, gen) {
    p.files.forEach(function (f) {
      var s = document.createElement("script");
      s.src = f + "?v=" + gen;
      document.body.appendChild(s);
    });
  }
  function apply(m) {
    switch (m.kind) {
    case "style-update": clearError(); swapStyles(m.payload, m.generation); break;
    case "script-update": clearError(); swapScripts(m.payload, m.generation); break;
    case "full-reload": location.reload(); break;
    case "build-error": showError(m.payload); break;
    }
  }
  function sse() {
    var es = new EventSource("` + pathEvents + `");
    es.onmessage = function (e) { apply(JSON.parse(e.data)); };
  }
  if (!window.WebSocket) { sse(); return; }
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "` + pathWS + `");
  var opened = false;
  ws.onopen = function () { opened = true; };
  ws.onmessage = function (e) { apply(JSON.parse(e.data)); };
  ws.onclose = function () { if (!opened) { sse(); } };
})();
`

func serveClient(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(clientScript))
}

// injectClient inserts the client script tag before </body>, or appends it
// when the document has no body end tag.
func injectClient(html []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if i < 0 {
		return append(bytes.Clone(html), clientTag...)
	}
	out := make([]byte, 0, len(html)+len(clientTag))
	out = append(out, html[:i]...)
	out = append(out, clientTag...)
	return append(out, html[i:]...)
}
