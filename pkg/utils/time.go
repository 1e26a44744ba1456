package utils

import "time"

// Now is the clock behind status timestamps. A variable so tests can pin it.
var Now = time.Now
