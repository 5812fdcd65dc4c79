package handler

import (
	"net/http"

	"github.com/refactorly/console/internal/ui"
	"github.com/refactorly/console/internal/ui/pages"
	"github.com/refactorly/console/internal/verification"
)

type VerifyHandler struct {
	flow *verification.Flow
}

func NewVerifyHandler(flow *verification.Flow) *VerifyHandler {
	return &VerifyHandler{flow: flow}
}

// VerifyEmail handles the link from the verification email. email and
// device_code arrive when the console itself sent the user here.
func (h *VerifyHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := verification.Input{
		Token: q.Get("token"),
		InFlow: verification.InFlow{
			Email:      q.Get("email"),
			DeviceCode: q.Get("device_code"),
		},
	}

	outcome := h.flow.Run(r.Context(), in)
	ui.Render(w, r, pages.Verify(outcome, in.InFlow.Email))
}
