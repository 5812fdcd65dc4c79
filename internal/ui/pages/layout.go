package pages

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/refactorly/console/internal/ctxkeys"
)

// html accumulates the first write error so page bodies read top to bottom.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *html) rawf(format string, args ...any) {
	if h.err != nil {
		return
	}
	_, h.err = fmt.Fprintf(h.w, format, args...)
}

// text writes s escaped.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) csrf(ctx context.Context) {
	h.rawf(`<input type="hidden" name="csrf_token" value="%s">`, templ.EscapeString(ctxkeys.CSRFToken(ctx)))
}

func (h *html) alert(kind, message string) {
	if message == "" {
		return
	}
	h.rawf(`<div class="alert alert-%s" role="alert">`, kind)
	h.text(message)
	h.raw(`</div>`)
}

func page(title string, body func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		appName := "Refactorly"
		if cfg := ctxkeys.Config(ctx); cfg != nil && cfg.AppName != "" {
			appName = cfg.AppName
		}

		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.rawf(`<meta name="csrf-token" content="%s">`, templ.EscapeString(ctxkeys.CSRFToken(ctx)))
		h.raw(`<title>`)
		h.text(title + " - " + appName)
		h.raw(`</title><script src="https://unpkg.com/htmx.org@2.0.4"></script></head><body>`)
		body(ctx, h)
		h.raw(`</body></html>`)
		return h.err
	})
}
