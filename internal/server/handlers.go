package server

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/pkg/tdi"
)

var indexPage = tdi.MustParse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>tdi preview</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #222; }
h1 { border-bottom: 2px solid #007acc; padding-bottom: .5rem; }
li { margin: .25rem 0; }
code { background: #f3f3f3; padding: 0 .25rem; }
</style>
</head>
<body>
<h1>Templates in <code tdi="root">.</code></h1>
<p tdi="empty">No templates found.</p>
<ul tdi="list"><li tdi="*entry"><a tdi="link" href="#">name</a> <small tdi="data">with model</small></li></ul>
</body>
</html>
`, tdi.WithSource("index"))

var errorPage = tdi.MustParse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title tdi="title">error</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; }
pre { background: #fff0f0; border: 1px solid #e0a0a0; padding: 1rem; white-space: pre-wrap; }
</style>
</head>
<body>
<h1 tdi="heading">Render failed</h1>
<pre tdi="message">message</pre>
<p><a href="/">All templates</a></p>
</body>
</html>
`, tdi.WithSource("error"))

const reloadScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(proto + location.host + "` + ReloadPath + `");
    ws.onmessage = function (e) {
      var msg = JSON.parse(e.data);
      if (msg.type === "reload") { location.reload(); }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>
`

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	names, err := s.loader.List()
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, "listing templates", err)
		return
	}

	model := &tdi.Handlers{Render: map[string]tdi.RenderFunc{
		"root": func(n *tdi.Node) error {
			n.SetContent(s.loader.Root())
			return nil
		},
		"empty": func(n *tdi.Node) error {
			if len(names) > 0 {
				n.Remove()
			}
			return nil
		},
		"list": func(n *tdi.Node) error {
			if len(names) == 0 {
				n.Remove()
			}
			return nil
		},
		"entry": func(n *tdi.Node) error {
			n.Repeat(nil, names)
			return nil
		},
		"link": func(n *tdi.Node) error {
			name := n.Ctx().Item.(string)
			n.SetAttr("href", "/t/"+name)
			n.SetContent(name)
			return nil
		},
		"data": func(n *tdi.Node) error {
			m, err := s.loader.LoadData(n.Ctx().Item.(string))
			if err != nil || len(m.Data()) == 0 {
				n.Remove()
			}
			return nil
		},
	}}

	s.writePage(w, r, http.StatusOK, indexPage, model)
}

func (s *PreviewServer) handleTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	query := r.URL.Query()

	tree, err := s.loader.LoadOverlay(name, query["overlay"]...)
	if err != nil {
		s.renderError(w, r, statusOf(err), "loading "+name, err)
		return
	}
	model, err := s.loader.LoadData(name)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, "loading the model of "+name, err)
		return
	}

	opts := append(s.config.RenderOptions(),
		tdi.WithModel(model),
		tdi.WithLogger(s.logger),
		tdi.WithContext(r.Context()),
	)
	if start := query.Get("start"); start != "" {
		opts = append(opts, tdi.WithStart(start))
	}

	out, err := tree.Bytes(opts...)
	if err != nil {
		s.renderError(w, r, statusOf(err), "rendering "+name, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset="+tree.Encoding())
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(injectReload(out)); err != nil {
		s.logger.Warn(r.Context(), err, "writing response", "template", name)
	}
}

// injectReload places the reload script before the last </body>, or at
// the end of documents without one.
func injectReload(page []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body"))
	if idx < 0 {
		return append(page, reloadScript...)
	}
	out := make([]byte, 0, len(page)+len(reloadScript))
	out = append(out, page[:idx]...)
	out = append(out, reloadScript...)
	return append(out, page[idx:]...)
}

func statusOf(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeFileNotFound, errors.ErrCodeUnknownAddress:
		return http.StatusNotFound
	case errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *PreviewServer) renderError(w http.ResponseWriter, r *http.Request, status int, what string, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, what)
	} else {
		s.logger.Debug(r.Context(), what, "status", status, "error", err.Error())
	}

	model := &tdi.Handlers{Render: map[string]tdi.RenderFunc{
		"title": func(n *tdi.Node) error {
			n.SetContent(http.StatusText(status))
			return nil
		},
		"heading": func(n *tdi.Node) error {
			n.SetContent(strings.ToUpper(what[:1]) + what[1:] + " failed")
			return nil
		},
		"message": func(n *tdi.Node) error {
			n.SetContent(err.Error())
			return nil
		},
	}}
	s.writePage(w, r, status, errorPage, model)
}

// writePage renders a built-in page as a templ component.
func (s *PreviewServer) writePage(w http.ResponseWriter, r *http.Request, status int, page *tdi.Tree, model tdi.Model) {
	var buf bytes.Buffer
	if err := page.Component(model, tdi.WithLogger(s.logger)).Render(r.Context(), &buf); err != nil {
		s.logger.Error(r.Context(), err, "rendering built-in page", "page", page.Source())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(injectReload(buf.Bytes())); err != nil {
		s.logger.Warn(r.Context(), err, "writing response")
	}
}
