// Package log builds the focuscrawl slog loggers.
//
// Every logger wraps its text or JSON handler in a RedactingHandler, which
// rewrites attributes before they are written:
//   - Secret-looking query parameters in url values are masked
//     (token, key, session, sid, password, auth and similar)
//   - Passwords in url userinfo are masked
//   - Attributes whose key names a credential are masked entirely
//   - Long string values such as page text are truncated
//
// Crawled urls routinely carry session ids and signed tokens, and crawl
// logs get shared, so masking happens in the handler rather than at each
// call site.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	logger.Info("fetched", "url", "https://example.com/a?sid=123")
//	// url=https://example.com/a?sid=***REDACTED***
//
// Logs can go to a size-rotated file instead of stderr:
//
//	w := log.NewFileWriter("crawl.log")
//	defer w.Close()
//	logger := log.NewLogger(w, verbose)
package log
