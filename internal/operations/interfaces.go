package operations

// WebSocketHub fans operation events out to connected dashboard clients.
// Satisfied by the websocket package's Hub; tests supply their own.
type WebSocketHub interface {
	BroadcastUpdate(eventType, subtype, action string, data interface{})
}

// ProgressReporter is implemented by steps that report granular progress
// while executing.
type ProgressReporter interface {
	ReportProgress(progress int, message string) error
}
