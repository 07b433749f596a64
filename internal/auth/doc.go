// Package auth identifies the user of the web app.
//
// Two login methods exist. The demo login accepts any email address from a
// form post and is meant for local use with the stand-in relay. The Google
// login runs the OAuth 2.0 authorization code flow with PKCE, requesting
// read-only calendar access and offline refresh tokens.
//
// Either way the identity, and for Google the OAuth token, is sealed into a
// single AES-256-GCM encrypted cookie by Sessions. Nothing is stored on the
// server. Middleware resolves the cookie into the request context, where
// handlers read it with UserFromContext.
//
// Expired Google access tokens are refreshed through TokenSource; the caller
// writes the refreshed token back with Sessions.Save so the next request
// does not refresh again.
package auth
