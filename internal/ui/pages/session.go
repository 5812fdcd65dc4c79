package pages

import (
	"context"
	"net/url"

	"github.com/a-h/templ"
)

// Loading is shown while the session has no verdict yet. It polls the
// session endpoint and reloads once the state settles.
func Loading() templ.Component {
	return page("Loading", func(ctx context.Context, h *html) {
		h.raw(`<main class="loading" hx-get="/session" hx-trigger="every 500ms" hx-swap="none"`)
		h.raw(` hx-on::after-request="if (JSON.parse(event.detail.xhr.responseText).phase !== 'loading') location.reload()">`)
		h.raw(`<div class="spinner" aria-label="Loading"></div></main>`)
	})
}

type LoginForm struct {
	Email     string
	ReturnTo  string
	Error     string
	Notice    string
	Providers []Provider
}

func Login(form LoginForm) templ.Component {
	return page("Sign in", func(ctx context.Context, h *html) {
		h.raw(`<main class="auth"><h1>Sign in</h1>`)
		h.alert("error", form.Error)
		h.alert("info", form.Notice)
		h.raw(`<form method="post" action="/login">`)
		h.csrf(ctx)
		h.rawf(`<input type="hidden" name="return_to" value="%s">`, templ.EscapeString(form.ReturnTo))
		h.rawf(`<label>Email <input type="email" name="email" value="%s" required></label>`, templ.EscapeString(form.Email))
		h.raw(`<label>Password <input type="password" name="password" required></label>`)
		h.raw(`<button type="submit">Sign in</button></form>`)
		h.raw(`<p class="providers">`)
		for _, p := range form.Providers {
			href := "/auth/" + p.ID
			if form.ReturnTo != "" {
				href += "?" + url.Values{"return_to": {form.ReturnTo}}.Encode()
			}
			h.rawf(`<a href="%s">Continue with `, templ.EscapeString(href))
			h.text(p.Name)
			h.raw(`</a> `)
		}
		h.raw(`</p><p><a href="/signup">Create an account</a></p></main>`)
	})
}

type SignupForm struct {
	Name  string
	Email string
	Error string
}

func Signup(form SignupForm) templ.Component {
	return page("Create account", func(ctx context.Context, h *html) {
		h.raw(`<main class="auth"><h1>Create your account</h1>`)
		h.alert("error", form.Error)
		h.raw(`<form method="post" action="/signup">`)
		h.csrf(ctx)
		h.rawf(`<label>Name <input type="text" name="name" value="%s" required></label>`, templ.EscapeString(form.Name))
		h.rawf(`<label>Email <input type="email" name="email" value="%s" required></label>`, templ.EscapeString(form.Email))
		h.raw(`<label>Password <input type="password" name="password" required></label>`)
		h.raw(`<button type="submit">Create account</button></form>`)
		h.raw(`<p><a href="/login">Already have an account? Sign in</a></p></main>`)
	})
}

// CheckEmail prompts the user to open the verification link.
func CheckEmail(email string) templ.Component {
	return page("Check your email", func(ctx context.Context, h *html) {
		h.raw(`<main class="auth"><h1>Check your email</h1><p>`)
		if email != "" {
			h.raw(`We sent a verification link to <strong>`)
			h.text(email)
			h.raw(`</strong>. `)
		}
		h.raw(`Open it to activate your account.</p></main>`)
	})
}

// Provider is a third-party account shown in the UI.
type Provider struct {
	ID   string
	Name string
}
