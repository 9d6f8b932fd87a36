// Package gatesdk is a Go client for the agentgate delegation broker.
//
// It covers the downstream side of the broker's surface: dynamic client
// registration, building authorization URLs with PKCE, parsing the callback
// redirect, and exchanging authorization codes and refresh tokens.
//
// A typical flow:
//
//	sdk := gatesdk.NewClient("https://gate.example.com")
//
//	reg, err := sdk.Register(ctx, gatesdk.RegistrationRequest{
//		ClientName:   "my-agent",
//		RedirectURIs: []string{"http://127.0.0.1:8976/callback"},
//	})
//
//	pkce, err := gatesdk.GeneratePKCEChallenge()
//	authURL := sdk.BuildAuthorizeURL(reg.ClientID, reg.RedirectURIs[0], state, scopes, pkce)
//	// ... direct the user's browser to authURL, receive the callback ...
//
//	code, state, err := gatesdk.ParseAuthorizationCallback(callbackURL)
//	tokens, err := sdk.ExchangeAuthorizationCode(ctx, reg.ClientID, code, reg.RedirectURIs[0], pkce.Verifier)
package gatesdk
