package clientdata

import "time"

// TTLSnapshot is how long a last-known-good payload stays eligible as a
// fallback before the cleanup job removes it.
const TTLSnapshot = 24 * time.Hour
