package middleware

import (
	"net/http"

	goGraph "github.com/MrEthical07/goGraph"
)

// RequireCanvas returns a [Guard] for pages served inside the canvas frame. Anonymous
// visitors get a script that moves the top frame to the login dialog.
func RequireCanvas(app *goGraph.App, opts ...Option) func(http.Handler) http.Handler {
	return Guard(app, FlowCanvas, opts...)
}
