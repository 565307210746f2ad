// Package client provides the `edu-events` command-line client.
//
// Most commands talk to the HTTP API of a running server. The base URL is
// discovered by the embedding binary through a BaseURLFunc; the standalone
// binary reads EDU_HTTP and defaults to http://127.0.0.1:8080. The health
// command uses the gRPC health service at EDU_GRPC (default
// 127.0.0.1:9090).
//
// Usage
//
//	edu-events events catalog
//
//	edu-events events publish --type CHAPTER_COMPLETED \
//	    --source progress-service \
//	    --data '{"studentId":7,"chapterId":3,"courseId":1}'
//
//	edu-events events streams
//	edu-events events pending --type HOMEWORK_SUBMITTED --service user-service
//	edu-events events dlq --type CHAPTER_COMPLETED --limit 20
//	edu-events events tail --type COURSE_ENROLLED --from earliest --limit 5
//
//	edu-events announce --title "维护通知" --content "今晚 22:00 维护"
//
//	# Offline, before the first server start:
//	edu-events groups ensure --service user-service,homework-service
//
//	edu-events health
//
// Notes
//
//   - tail reads the server-sent event stream and never joins a reader
//     group, so it does not affect delivery.
//   - groups ensure opens the data directory itself and fails while a
//     server holds it.
package client
