package middleware

import (
	"net/http"

	goGraph "github.com/MrEthical07/goGraph"
)

// RequireOAuth returns a [Guard] for standalone pages. Anonymous visitors are
// redirected to the authorize URL and come back with a code.
func RequireOAuth(app *goGraph.App, opts ...Option) func(http.Handler) http.Handler {
	return Guard(app, FlowOAuth, opts...)
}
