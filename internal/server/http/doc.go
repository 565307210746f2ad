// Package httpserver is the REST surface of the event subsystem: health, the
// catalog, publishing, pending and dead-letter inspection, an SSE tail,
// notifications, announcements and the websocket endpoint.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
