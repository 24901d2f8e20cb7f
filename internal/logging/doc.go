// Package logging provides structured logging for digestd.
//
// It wraps Zap with a small amount of configuration (level, format) and
// context helpers that carry a request id through the personalization
// pipeline, so log lines emitted deep inside it correlate with the HTTP
// request or notification cycle that triggered them.
package logging
