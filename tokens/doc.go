// Package tokens implements the client-side token lifecycle manager.
//
// A Manager owns one or more named token slots. Each slot independently
// acquires an access token through a Provider, schedules a proactive
// refresh at a configurable fraction of the token's lifetime, and keeps
// serving the old token to concurrent readers while a renewal is in
// flight. When refreshing keeps failing, a warning event fires once at
// the warning threshold; reads only start failing after the token's own
// expiry.
//
// Basic usage:
//
//	manager, err := tokens.NewManager(provider,
//	    tokens.WithFactors(0.8, 0.9),
//	    tokens.WithObserver(tokens.NewZapObserver(logger)),
//	)
//	if err != nil {
//	    // handle error
//	}
//	defer manager.Shutdown()
//
//	if err := manager.RegisterSlot("service", []string{"uid", "entities.read"}); err != nil {
//	    // handle error
//	}
//
//	token, err := manager.GetToken(ctx, "service")
//
// The manager integrates with gRPC clients through
// UnaryClientInterceptor and StreamClientInterceptor, with plain HTTP
// clients through the httpclient package, and with golang.org/x/oauth2
// through TokenSource.
package tokens
