// Package config loads appauth configuration.
//
// Configuration is assembled in layers, later layers winning:
//
//  1. struct defaults (the `default` tags in types.go)
//  2. config.yaml in the configuration directory (~/.config/appauth)
//  3. APPAUTH_* environment variables (the `env` tags)
//
// Before the environment is read, LoadEnv can populate it from a .env file
// and from a JSON secret in AWS Secrets Manager, which is how a deployment
// supplies the client secret without writing it to disk.
//
// The result is validated with go-playground/validator; failures are
// reported as ValidationErrors naming the YAML field.
//
// Example config.yaml:
//
//	issuer: https://accounts.example.com
//	clientID: appauth-cli
//	scope: openid profile email offline_access
//	callbackPort: 8085
//	storage:
//	  backend: sqlite
//	  dsn: file:/home/me/.config/appauth/prefs.db
//	keys:
//	  mode: auto
//	encryption:
//	  suite: xchacha20poly1305
//	  readSuites: [aes-cbc-pkcs7]
//	snapshot:
//	  backend: redis
//	  redisURL: redis://localhost:6379/0
//	log:
//	  level: debug
package config
