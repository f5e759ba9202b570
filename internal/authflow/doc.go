// Package authflow drives the OAuth 2.0 authorization code flow for a single
// local user.
//
// A Service owns exactly one authstate.State. All reads and writes of that
// state happen on the service's owner goroutine, which consumes operations
// from a channel one at a time. Network calls (discovery, code exchange,
// refresh, revocation and resource requests) run on a bounded worker.Pool
// and their results are handed back to the owner goroutine, where
// State.Update is the single point of mutation.
//
// Typical use from a CLI:
//
//	svc := authflow.NewService(gateway.Load(ctx),
//		authflow.WithObserver(gateway.Save),
//		authflow.WithAuditSink(sink),
//	)
//	defer svc.Close()
//
//	srv := authflow.NewCallbackServer(cfg.CallbackPort)
//	redirectURI, _ := srv.Start(ctx)
//	req, _ := svc.StartAuthorization(ctx, authflow.AuthorizationParams{...})
//	_ = authflow.OpenBrowser(req.URL)
//	params, _ := srv.WaitForCallback(ctx)
//	err := svc.HandleAuthorizationCallback(ctx, params)
//
// After every mutation the StateObserver receives a copy of the new state,
// which is how the CLI keeps the encrypted store current.
package authflow
