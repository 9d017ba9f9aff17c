// Package config handles configuration loading for the MOTHER gateway.
//
// Configuration is loaded from YAML files with environment variable
// expansion (${VAR_NAME} syntax; unset variables expand to the empty
// string). Load validates the result before returning it.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/mother/gateway.db"
//
// Event fan-out:
//
//	broadcast:
//	  queue_size: 64   # per-subscriber outbound queue capacity
//
// Context retrieval:
//
//	memory:
//	  context_limit: 5   # prior exchanges folded into each prompt
//
// Agent roster seeded at startup:
//
//	agents:
//	  - name: "weather"
//	    address: "weather.local:9000"
//	    kind: "service"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
