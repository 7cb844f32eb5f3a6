package frontier

import "errors"

// ErrUnknownURL is returned by ProcessResponse when the URL is not a live
// item, typically because it was removed after being dequeued.
var ErrUnknownURL = errors.New("url is not in the frontier")
