// Package webhook serves the inbound notification endpoint.
//
// The platform posts notifications to /event/{type}; the listener re-emits
// each entry of the body's changes array as one event of that type and
// always answers 200, since the platform treats delivery as
// fire-and-forget.
//
// The listener binds plain TCP by default. With Tailscale enabled it joins
// the tailnet via tsnet, optionally exposing a public HTTPS endpoint
// through Funnel so the platform can reach a connector running behind NAT.
package webhook
