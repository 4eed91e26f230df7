// Package auth turns per-provider credential schemes into request signers.
//
// Four schemes are supported, selected by the type of a provider's
// config.AuthConfig:
//
//   - token: credentials are POSTed to auth_uri and the returned token
//     (raw text, or one key of a JSON body) is sent as a bearer token
//   - qsauth: credentials travel in the query string of every request;
//     authentication only checks that auth_uri is reachable with them
//   - sas: every request URL is exchanged for a signed URL fetched from
//     auth_uri at signing time
//   - oidc_password: OAuth2 password grant against an OIDC server, with
//     refresh-token reuse and fallback to the last obtained token
//
// # Usage
//
//	scheme, err := auth.NewScheme("provider", cfg, creds, auth.WithLogger(logger))
//	if err != nil {
//	    // handle error
//	}
//	coord := auth.NewCoordinator(auth.WithCoordinatorLogger(logger))
//	_ = coord.Register(scheme)
//
//	signer, err := coord.Authenticate(ctx, "provider")
//	if err != nil {
//	    // errors.Is(err, auth.ErrMisconfigured), auth.ErrAuthentication or auth.ErrAuthPending
//	}
//	err = signer.Sign(req)
//
// # Token Caching
//
// Schemes whose tokens expire keep the last obtained token in a TokenCache.
// Concurrent callers share one in-flight refresh, and a failed refresh falls
// back to the stored token instead of failing the caller.
//
// # Observability
//
// Schemes and the coordinator emit Prometheus metrics:
//   - eogate_auth_authenticate_total: authentication attempts
//   - eogate_auth_authenticate_duration_seconds: attempt duration histogram
//   - eogate_auth_token_refresh_total: password and refresh grants
//   - eogate_auth_fallback_total: attempts served from a stale token
//   - eogate_auth_errors_total: authentication errors
package auth
