package pipeline

import "time"

// timeNow is a package-level variable for testability.
// Tests can replace this to control approval and decision timestamps.
var timeNow = func() time.Time { return time.Now().UTC() }
