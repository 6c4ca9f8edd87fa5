// Package config handles configuration loading for pairwise.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion, then individual fields may be overridden by PAIRWISE_* variables.
// Anything left unset keeps the value from Default, so an empty file (or no
// file at all) yields a working in-memory setup.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PAIRWISE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/pairwise/config.yaml
//  3. ~/.config/pairwise/config.yaml
//
// Files ending in .toml are decoded as TOML; everything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	store:
//	  redis:
//	    password: "${REDIS_PASSWORD}"
//
// # Environment Overrides
//
//	PAIRWISE_STORE_BACKEND        store.backend
//	PAIRWISE_SQLITE_PATH          store.sqlite.path
//	PAIRWISE_PEBBLE_DIR           store.pebble.dir
//	PAIRWISE_REDIS_ADDR           store.redis.addr
//	PAIRWISE_REDIS_PASSWORD       store.redis.password
//	PAIRWISE_REDIS_DB             store.redis.db
//	PAIRWISE_REDIS_DIAL_TIMEOUT   store.redis.dial_timeout
//	PAIRWISE_CHAT_SUBSCRIBER_BUFFER chat.subscriber_buffer
//	PAIRWISE_CHAT_ECHO_TTL        chat.echo_ttl
//	PAIRWISE_EXPORT_DIR           export.dir
//	PAIRWISE_EXPORT_FORMAT        export.format
//	PAIRWISE_LOG_LEVEL            logging.level
//	PAIRWISE_LOG_FORMAT           logging.format
//	PAIRWISE_METRICS_ENABLED      metrics.enabled
//	PAIRWISE_METRICS_ADDR         metrics.addr
//
// # Configuration Sections
//
// Storage backend (memory, sqlite, pebble or redis):
//
//	store:
//	  backend: "redis"
//	  sqlite:
//	    path: "~/.local/share/pairwise/pairwise.db"
//	  pebble:
//	    dir: "~/.local/share/pairwise/pebble"
//	  redis:
//	    addr: "127.0.0.1:6379"
//	    password: ""
//	    db: 0
//	    dial_timeout: "5s"
//
// Identifier prefixes (must not contain ':'):
//
//	keys:
//	  user_prefix: "user"
//	  messages_prefix: "messages"
//	  chat_prefix: "chat"
//	  hash_prefix: "hash"
//	  users_key: "users"
//
// Live chat, export, logging and metrics:
//
//	chat:
//	  subscriber_buffer: 64
//	  echo_ttl: "10s"
//	export:
//	  dir: "."
//	  format: "text"   # or html
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # or json
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
package config
