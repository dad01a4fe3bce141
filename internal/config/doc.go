// Package config loads relay-gateway configuration.
//
// # Format
//
// Configuration is YAML with ${VAR_NAME} environment variable expansion
// applied to the raw file content before parsing, so secrets stay out of the
// file:
//
//	server:
//	  http_addr: ":8080"
//	  public_url: "https://relay.example.com"
//	  shutdown_timeout: "10s"
//	database:
//	  path: "/var/lib/relay-gateway/relay.db"
//	twilio:
//	  account_sid: "${TWILIO_ACCOUNT_SID}"
//	  auth_token: "${TWILIO_AUTH_TOKEN}"
//	  from_number: "+15550001111"
//	agent:
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o-mini"
//	  persona_path: "/etc/relay-gateway/persona.toml"
//	logging:
//	  level: "info"
//	  format: "text"
//
// Duration fields are written as Go duration strings ("10s", "1m") and
// parsed at load time. Validate runs on every Load and reports the first
// missing required field.
package config
