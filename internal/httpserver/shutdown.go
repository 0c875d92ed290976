package httpserver

import "time"

// ShutdownTimeout bounds graceful shutdown of the server and the sweep scheduler.
var ShutdownTimeout = 15 * time.Second
