// Package auth manages the two platform tokens the connector needs.
//
// # App Token
//
// The app-level bearer token is obtained from the sentinel service with the
// installation id and secret. The Manager owns its lifecycle:
//
//	m := auth.NewManager(auth.ManagerConfig{...})
//	err := m.Start(ctx)   // initial fetch
//	token, err := m.Token()
//
// The token's exp claim is decoded (unverified) to schedule a background
// refresh at 80% of the remaining lifetime. At most one refresh timer is
// ever pending. A failed refresh reports through OnRefresh and stops the
// loop; the stale token stays readable so in-flight work can finish.
//
// # Consumer Session Token
//
// FetchConsumerToken trades the app token for a JWS scoped to one external
// consumer identity. An empty external id gets a generated one, so
// anonymous consumers still receive distinct sessions.
package auth
