// Package logx wraps zerolog behind a small structured logging API.
//
// Components receive a Logger tagged with a "comp" field; the Service
// owns the sinks (console, optional file) and can swap level/outputs at
// runtime when the config file is reloaded.
package logx
