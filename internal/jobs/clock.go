package jobs

import "time"

// timeNow is the wall-clock source every family job uses to build its
// metrics query window. Each job copies it into its own now field.
var timeNow = time.Now
