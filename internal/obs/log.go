package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	logOnce sync.Once
	lineLog *log.Logger
)

// Logger returns the process-wide line logger. The service writes every
// entry as a single JSON object on stdout, with no prefix and no flags.
func Logger() *log.Logger {
	logOnce.Do(func() {
		lineLog = log.New(os.Stdout, "", 0)
	})
	return lineLog
}

// LogRequest emits one structured line. An entry that fails to marshal is
// replaced with a fixed error line so the event is never dropped silently.
func LogRequest(fields map[string]any) {
	line, err := json.Marshal(fields)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log_entry_marshal_failed"}`)
		return
	}
	Logger().Println(string(line))
}
