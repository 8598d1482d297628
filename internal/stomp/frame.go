// Package stomp implements the text subprotocol framing used by the
// backend's realtime endpoint: NUL-terminated frames with a command line,
// colon-separated headers and an optional body, plus bare-LF heartbeats.
package stomp

import (
	"bytes"
	"fmt"
	"strings"
)

// Command is a frame verb.
type Command string

const (
	CmdConnect     Command = "CONNECT"
	CmdConnected   Command = "CONNECTED"
	CmdSubscribe   Command = "SUBSCRIBE"
	CmdUnsubscribe Command = "UNSUBSCRIBE"
	CmdSend        Command = "SEND"
	CmdMessage     Command = "MESSAGE"
	CmdError       Command = "ERROR"
	CmdReceipt     Command = "RECEIPT"
	CmdDisconnect  Command = "DISCONNECT"
)

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHeartBeat     = "heart-beat"
	HdrAuthorization = "Authorization"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrContentType   = "content-type"
	HdrMessage       = "message"
	HdrReceipt       = "receipt"
)

// Frame is one discrete unit on the realtime transport.
type Frame struct {
	Command Command
	Headers map[string]string
	Body    []byte
}

// NewFrame builds a frame from alternating header key/value pairs.
func NewFrame(cmd Command, headers ...string) Frame {
	f := Frame{Command: cmd, Headers: make(map[string]string, len(headers)/2)}
	for i := 0; i+1 < len(headers); i += 2 {
		f.Headers[headers[i]] = headers[i+1]
	}
	return f
}

// Header returns the value of a header, or "" when absent.
func (f Frame) Header(name string) string {
	return f.Headers[name]
}

// IsHeartbeat reports whether raw is a heartbeat rather than a frame.
func IsHeartbeat(raw []byte) bool {
	trimmed := bytes.Trim(raw, "\r\n")
	return len(trimmed) == 0
}

// Heartbeat is the payload sent to keep an idle connection alive.
var Heartbeat = []byte("\n")

// Marshal encodes a frame into its wire form.
func Marshal(f Frame) []byte {
	var buf bytes.Buffer
	buf.WriteString(string(f.Command))
	buf.WriteByte('\n')
	escape := f.Command != CmdConnect && f.Command != CmdConnected
	for k, v := range f.Headers {
		if escape {
			k, v = escapeHeader(k), escapeHeader(v)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Parse decodes one frame from its wire form. Heartbeats are not frames;
// callers check IsHeartbeat first.
func Parse(raw []byte) (Frame, error) {
	raw = bytes.TrimSuffix(raw, []byte{0})
	head, body, found := bytes.Cut(raw, []byte("\n\n"))
	if !found {
		// Frame without a blank line has no body section.
		head, body = raw, nil
	}

	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return Frame{}, fmt.Errorf("empty frame")
	}

	f := Frame{Command: Command(strings.TrimSpace(lines[0])), Headers: map[string]string{}}
	switch f.Command {
	case CmdConnect, CmdConnected, CmdSubscribe, CmdUnsubscribe, CmdSend,
		CmdMessage, CmdError, CmdReceipt, CmdDisconnect:
	default:
		return Frame{}, fmt.Errorf("unknown command %q", f.Command)
	}

	unescape := f.Command != CmdConnect && f.Command != CmdConnected
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("malformed header %q", line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if unescape {
			key, value = unescapeHeader(key), unescapeHeader(value)
		}
		// First occurrence wins per the subprotocol rules.
		if _, seen := f.Headers[key]; !seen {
			f.Headers[key] = value
		}
	}

	f.Body = bytes.TrimSuffix(body, []byte{0})
	return f, nil
}

var headerEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ":", `\c`, "\r", `\r`)

var headerUnescaper = strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\c`, ":", `\\`, `\`)

func escapeHeader(s string) string   { return headerEscaper.Replace(s) }
func unescapeHeader(s string) string { return headerUnescaper.Replace(s) }
