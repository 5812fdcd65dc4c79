package pages

import (
	"context"

	"github.com/a-h/templ"
	"github.com/refactorly/console/internal/model"
)

func Verify(outcome model.VerificationOutcome, email string) templ.Component {
	return page("Verify email", func(ctx context.Context, h *html) {
		h.raw(`<main class="auth"><h1>Email verification</h1>`)
		switch outcome.Status {
		case model.VerificationIdle:
			h.raw(`<p>Check your email`)
			if email != "" {
				h.raw(` (`)
				h.text(email)
				h.raw(`)`)
			}
			h.raw(` for a verification link.</p>`)
		case model.VerificationPending:
			h.raw(`<div class="spinner" aria-label="Verifying"></div>`)
		case model.VerificationSucceeded:
			h.alert("success", outcome.Message)
			h.raw(`<p><a href="/login">Sign in</a></p>`)
		case model.VerificationFailed:
			h.alert("error", outcome.Message)
			h.raw(`<p><a href="/signup">Start over</a></p>`)
		}
		h.raw(`</main>`)
	})
}
