// Package logging provides a leveled, printf-style logging interface for the
// thumbnail engine, backed by zap.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The level comes from configuration (see Init) or, when none is given, from
// the DEBUG and LOG_LEVEL environment variables.
package logging
