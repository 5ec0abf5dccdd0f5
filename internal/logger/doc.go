// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger writing to stderr, keeping stdout free for
//     the operator prompt and the server's own output,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - per-level convenience functions in plain (Info) and key-value
//     (InfoKV) form.
//
// Components accept a context and extract the logger from it, so
// supervisor phases can tag their output with named scopes.
package logger
