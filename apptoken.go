package goGraph

import (
	"context"
	"time"

	"github.com/MrEthical07/goGraph/transport"
)

const flowApp = "app"

// FetchAppAccessToken obtains an application token through the client-credentials
// grant. Concurrent callers share one upstream request.
//
// The token endpoint answers like the code exchange: a text/plain form carrying
// access_token, or a JSON error body.
func (a *App) FetchAppAccessToken(ctx context.Context) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	v, err, _ := a.appTokens.Do("app_token", func() (any, error) {
		return a.fetchAppAccessToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (a *App) fetchAppAccessToken(ctx context.Context) (string, error) {
	a.metrics.Inc(MetricAppTokenFetch)

	resp, err := a.transport.Do(ctx, a.config.Endpoints.OAuth.TokenURL, transport.POST, map[string]string{
		"client_id":     a.config.AppID,
		"client_secret": a.config.AppSecret,
		"type":          "client_cred",
	})
	if err == nil {
		sess, perr := parseTokenResponse(resp, time.Now())
		if perr == nil {
			a.emitAudit(ctx, auditEventAppTokenFetched, flowApp, true, 0, nil, nil)
			return sess.AccessToken, nil
		}
		err = perr
	}

	a.logger.WarnContext(ctx, "app token fetch failed", "error", err)
	a.emitAudit(ctx, auditEventAppTokenFailure, flowApp, false, 0, err, nil)
	return "", err
}
