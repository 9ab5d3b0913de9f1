package reliablestore

import "time"

// Now is the clock used throughout this package. It is a package-level
// variable, not a direct time.Now() call, so tests can control the
// timestamps stamped on transactions, savepoints and staged operations. The
// timeout timer runs on real time (time.AfterFunc) and does not read Now.
var Now = time.Now
