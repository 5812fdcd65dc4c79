package pages

import (
	"context"

	"github.com/a-h/templ"
	"github.com/refactorly/console/internal/model"
)

type DashboardView struct {
	User *model.User
	// Overlay covers the page while a logout tears the session down.
	Overlay   bool
	Error     string
	Providers []Provider
}

func Dashboard(v DashboardView) templ.Component {
	return page("Dashboard", func(ctx context.Context, h *html) {
		if v.Overlay {
			h.raw(`<div class="overlay" hx-get="/session" hx-trigger="every 300ms" hx-swap="none"`)
			h.raw(` hx-on::after-request="if (JSON.parse(event.detail.xhr.responseText).phase !== 'authenticated') location.reload()">`)
			h.raw(`Signing out…</div>`)
		}
		h.raw(`<header><span class="org">`)
		h.text(orgName(v.User))
		h.raw(`</span><form method="post" action="/logout" hx-post="/logout" hx-indicator="#logout-overlay">`)
		h.csrf(ctx)
		h.raw(`<button type="submit">Sign out</button></form></header>`)
		h.raw(`<div id="logout-overlay" class="overlay htmx-indicator">Signing out…</div>`)
		h.raw(`<main><h1>Dashboard</h1>`)
		h.alert("error", v.Error)
		h.raw(`<section class="connections"><h2>Connected accounts</h2><ul>`)
		for _, p := range v.Providers {
			h.raw(`<li>`)
			h.text(p.Name)
			if v.User.Connected(p.ID) {
				h.raw(` <span class="badge">Connected</span>`)
			} else {
				h.rawf(`<form method="post" action="/app/connections/%s">`, p.ID)
				h.csrf(ctx)
				h.raw(`<button type="submit">Connect</button></form>`)
			}
			h.raw(`</li>`)
		}
		h.raw(`</ul></section></main>`)
	})
}

type OnboardingForm struct {
	OrganizationName string
	Error            string
}

func Onboarding(form OnboardingForm) templ.Component {
	return page("Welcome", func(ctx context.Context, h *html) {
		h.raw(`<main class="auth"><h1>Set up your workspace</h1>`)
		h.alert("error", form.Error)
		h.raw(`<form method="post" action="/app/onboarding">`)
		h.csrf(ctx)
		h.rawf(`<label>Organization <input type="text" name="organization_name" value="%s" required></label>`,
			templ.EscapeString(form.OrganizationName))
		h.raw(`<button type="submit">Continue</button></form></main>`)
	})
}

// LinkError reports a provider handshake that failed before or after the
// redirect.
func LinkError(provider, message string) templ.Component {
	return page("Connection failed", func(ctx context.Context, h *html) {
		h.raw(`<main class="auth"><h1>`)
		h.text("Couldn't connect " + provider)
		h.raw(`</h1>`)
		h.alert("error", message)
		h.raw(`<p><a href="/">Back</a></p></main>`)
	})
}

func orgName(u *model.User) string {
	if u == nil {
		return ""
	}
	if u.OrganizationName != "" {
		return u.OrganizationName
	}
	return u.Email
}

func NotFound() templ.Component {
	return page("Not found", func(ctx context.Context, h *html) {
		h.raw(`<main class="auth"><h1>Page not found</h1><p><a href="/">Back to the console</a></p></main>`)
	})
}
