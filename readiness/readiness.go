// Package readiness parses the lines a sidecar prints on stdout to announce its port and that its client is ready.
//
// Two forms are accepted. The legacy form embeds a marker in free text:
//
//	tauri-server-port=4321
//	tauri-client-ready
//
// The structured form is one JSON object per line:
//
//	{"event":"port","port":4321}
//	{"event":"ready"}
package readiness

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

const (
	PortMarker  = "tauri-server-port"
	ReadyMarker = "tauri-client-ready"
	delimiter   = "="

	eventPort  = "port"
	eventReady = "ready"
)

var ErrMalformedPort = errors.New("malformed port announcement")

// Signal is what a single line announces. A line may carry both a port and the ready marker.
type Signal struct {
	// Port is the announced port, or 0 if the line announces none.
	Port  int
	Ready bool
}

// None reports whether the line carries no signal.
func (s Signal) None() bool { return s.Port == 0 && !s.Ready }

// Parse reports the signals a stdout line carries. The port announcement and the ready marker are
// evaluated independently, so a malformed port still returns any ready signal on the same line,
// together with an error wrapping ErrMalformedPort.
//
// JSON lines with a recognised event are decoded as such; any other line, JSON or not, is checked
// for the text markers.
func Parse(line string) (Signal, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		if sig, ok, err := parseJSON(trimmed); ok {
			return sig, err
		}
	}
	return parseLegacy(line)
}

func parseLegacy(line string) (Signal, error) {
	var (
		sig Signal
		err error
	)
	if i := strings.Index(line, PortMarker); i >= 0 {
		sig.Port, err = parseLegacyPort(line, line[i+len(PortMarker):])
	}
	sig.Ready = strings.Contains(line, ReadyMarker)
	return sig, err
}

// parseLegacyPort takes the run of digits that follows the delimiter, after leading whitespace, as the port.
func parseLegacyPort(line, rest string) (int, error) {
	if !strings.HasPrefix(rest, delimiter) {
		return 0, fmt.Errorf("%w: missing %q in %q", ErrMalformedPort, delimiter, line)
	}
	token := strings.TrimLeftFunc(rest[len(delimiter):], unicode.IsSpace)
	end := strings.IndexFunc(token, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		token = token[:end]
	}
	if token == "" {
		return 0, fmt.Errorf("%w: no port in %q", ErrMalformedPort, line)
	}
	return parsePort(token)
}

// parseJSON decodes a structured line. ok is false when the event is missing or unknown.
func parseJSON(line string) (Signal, bool, error) {
	event := gjson.Get(line, "event")
	if event.Type != gjson.String {
		return Signal{}, false, nil
	}
	switch event.Str {
	case eventPort:
		port := gjson.Get(line, "port")
		switch port.Type {
		case gjson.Number:
			if port.Num != float64(int(port.Num)) {
				return Signal{}, true, fmt.Errorf("%w: non-integer port %s", ErrMalformedPort, port.Raw)
			}
			p, err := validPort(int(port.Num))
			return Signal{Port: p}, true, err
		case gjson.String:
			p, err := parsePort(port.Str)
			return Signal{Port: p}, true, err
		default:
			return Signal{}, true, fmt.Errorf("%w: missing port in %s", ErrMalformedPort, line)
		}
	case eventReady:
		return Signal{Ready: true}, true, nil
	default:
		return Signal{}, false, nil
	}
}

func parsePort(token string) (int, error) {
	port, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedPort, token)
	}
	return validPort(port)
}

func validPort(port int) (int, error) {
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %d out of range", ErrMalformedPort, port)
	}
	return port, nil
}

// SessionURL is the WebSocket endpoint a trame client connects to on the given port.
func SessionURL(port int) string {
	return fmt.Sprintf("ws://localhost:%d/ws", port)
}
