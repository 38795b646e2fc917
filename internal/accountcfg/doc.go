// Package accountcfg reads account configuration data from the platform's
// CDN, currently agent user lookups.
package accountcfg
