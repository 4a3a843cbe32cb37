package feature

type Name string

// list of feature names used in the code base. These must be kept in sync
// with any external flag file.
const (
	// LogStreaming turns on live websocket streaming of job output.
	LogStreaming Name = "log-streaming"
	// DepCache turns on restoring and saving the dependency cache.
	DepCache Name = "dep-cache"
)
