// Package config handles configuration loading for liveconnect.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. Every section is optional: a missing section disables the
// capability that depends on it instead of failing startup.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	app:
//	  secret: "${LP_APP_SECRET}"
//
// # Configuration Sections
//
// Account and service directory:
//
//	account:
//	  id: "12345678"
//	  csds_domain: "adminlogin.liveperson.net"
//
// App installation credentials (enables sending):
//
//	app:
//	  installation_id: "..."
//	  secret: "${LP_APP_SECRET}"
//	  app_id: "my-connector"
//
// Webhook listener, optionally public via Tailscale Funnel:
//
//	listener:
//	  port: 8080
//	  tailscale:
//	    enabled: true
//	    hostname: "liveconnect"
//	    funnel: true
//
// OAuth1 credentials (enables history search):
//
//	oauth:
//	  consumer_key: "..."
//	  consumer_secret: "..."
//	  token: "..."
//	  token_secret: "..."
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Capability Checks
//
// The HasDomains, HasSender, HasListener, and HasHistory helpers report
// which capabilities the loaded configuration enables.
package config
