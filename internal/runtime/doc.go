// Package runtime wires storage, config and the event components into one
// process: the pebble-backed event log, the relational store, the publisher,
// live sessions, the dispatch container with the configured services'
// listeners, and the outbox relay.
//
// Example:
//
//	cfg := config.Default()
//	rt, err := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	if err := rt.Start(ctx); err != nil {
//	    return err
//	}
//	rt.Publisher().Publish(ctx, events.CourseEnrolled, events.ServiceCourse, payload)
package runtime
