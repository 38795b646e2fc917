// Package history searches a consumer's conversation history through the
// OAuth1-signed messaging interactions API. The connector uses it to find
// the open conversation behind a duplicate-create rejection.
package history
