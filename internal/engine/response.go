package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// Response is the JSON object the engine prints for each command
type Response struct {
	Success bool            `json:"success"`
	Output  string          `json:"output"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsUnknownCommand reports whether the engine rejected the command name
// itself rather than failing while running it
func (r Response) IsUnknownCommand() bool {
	msg := strings.ToLower(r.Error)
	return !r.Success && (strings.Contains(msg, "unknown command") || strings.Contains(msg, "unrecognized command"))
}

// ParseResponses extracts every line of stdout that decodes as a response
// object. Engine log lines and other noise are skipped.
func ParseResponses(stdout []byte) []Response {
	var responses []Response

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var probe map[string]json.RawMessage
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}

		if _, ok := probe["success"]; !ok {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}

		responses = append(responses, resp)
	}

	return responses
}
