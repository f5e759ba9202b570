package authflow

import (
	"context"

	"appauth/internal/authstate"
	"appauth/internal/worker"
	"appauth/pkg/logging"
)

// CallAPI performs a bearer authenticated GET of url with a fresh access
// token.
//
// When no usable token exists, or the resource server answers 401, the
// result's Outcome is OutcomeReauthorizationRequired. A 401 carrying an
// invalid_token challenge also forces a refresh on the next call.
func (s *Service) CallAPI(ctx context.Context, url string) worker.Result {
	var result worker.Result
	_ = s.PerformActionWithFreshToken(ctx, func(accessToken, _ string, err error) {
		if err != nil {
			if authstate.IsNetworkError(err) {
				result = worker.Result{StatusCode: worker.StatusNoConnection, Err: err}
				return
			}
			result = worker.NeedsReauthorization(err)
			return
		}

		r, aerr := s.pool.GetJSON(ctx, url, accessToken).Await(ctx)
		if aerr != nil {
			r = worker.Result{StatusCode: worker.StatusNoConnection, Err: authstate.NewError(authstate.KindNetwork, "resource call did not complete", aerr)}
		}
		result = r
	})

	if result.Outcome() == worker.OutcomeReauthorizationRequired && result.Challenge.InvalidToken() {
		logging.Info(logging.SubsystemAuthFlow, "Resource server rejected the access token, refreshing on next use")
		if err := s.MarkNeedsTokenRefresh(ctx); err != nil {
			logging.Warn(logging.SubsystemAuthFlow, "Failed to mark token for refresh: %v", err)
		}
	}
	return result
}
