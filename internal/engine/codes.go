package engine

// Exit codes observed from the engine process, plus the ones gebc assigns
// when it has to stop the process itself
const (
	ExitSuccess       = 0
	ExitCommandFailed = 1
	ExitUsage         = 2
	ExitTimeout       = 124
	ExitKilled        = 137
	ExitNotStarted    = -1
)

// ExitCodes maps engine exit codes to their descriptions
var ExitCodes = map[int]string{
	ExitSuccess:       "Success",
	ExitCommandFailed: "Command failed",
	ExitUsage:         "Invalid arguments",
	ExitTimeout:       "Timed out",
	ExitKilled:        "Killed",
	ExitNotStarted:    "Engine could not be started",
}

// GetExitMessage returns the description for a given exit code, or a generic
// message if unknown
func GetExitMessage(code int) string {
	if msg, ok := ExitCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}
