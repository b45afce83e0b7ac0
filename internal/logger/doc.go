// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a colored console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - a Session that tees every entry into a per-run log file,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Services accept a context and extract the logger from it, so whatever
// the orchestrator puts into the context ends up both on the console and in
// the run log.
package logger
