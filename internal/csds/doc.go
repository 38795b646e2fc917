// Package csds resolves the per-account service directory that maps
// platform service names to their base domains.
package csds
