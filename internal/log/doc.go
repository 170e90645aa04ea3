// Package log provides structured logging for the crawler with
// automatic redaction of session secrets.
//
// Session identities carry cookie jars and proxy URLs that may embed
// credentials. Those values routinely flow through log attributes
// (session acquisition, cookie injection, navigation errors), so the
// handler here scrubs them before any record reaches the underlying
// slog handler. Components just log; they never need to remember which
// attribute is sensitive.
package log
