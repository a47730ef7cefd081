// Package httpclient builds HTTP clients that authenticate outgoing
// requests with bearer tokens from a token slot.
//
// The BearerTransport wraps any http.RoundTripper and injects the
// Authorization header before each request:
//
//	client, err := httpclient.NewBuilder().
//	    WithTokenSlot(manager, "service").
//	    WithTimeout(10 * time.Second).
//	    Build()
//
// Token fetches respect each request's context, so cancellation and
// deadlines propagate into the token manager.
package httpclient
