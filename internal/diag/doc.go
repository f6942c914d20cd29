// Package diag defines the diagnostic model shared by the program, the build
// lifecycle and the language server.
//
// # Data model
//
// Diagnostic is the central record: an absolute file path, a zero-based
// Range, a Code, a Severity and a message. Codes are kept in string form so a
// numeric code from user configuration (1001) and its textual spelling
// ("1001") compare equal.
//
// # Filtering
//
// Filterer strips diagnostics the user asked to hide. Rules come from the
// project manifest (diagnostic_filters, ignore_error_codes) and are normalized
// by GetRules. Glob rules are matched against lower-cased absolute paths and
// the match result is memoized per path for the duration of one Filter call.
//
// # Delivery
//
// Collection turns the current diagnostics of every workspace into the
// minimal per-file patch a client needs: files whose message fingerprint
// changed since the previous call, each carrying its full current list.
package diag
