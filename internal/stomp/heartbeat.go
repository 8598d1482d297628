package stomp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeartBeat is one side's heart-beat declaration: the smallest interval it
// can send at and the interval it would like to receive at. Zero disables
// the respective direction.
type HeartBeat struct {
	SendInterval time.Duration
	RecvInterval time.Duration
}

// String renders the heart-beat header value in milliseconds.
func (h HeartBeat) String() string {
	return fmt.Sprintf("%d,%d", h.SendInterval.Milliseconds(), h.RecvInterval.Milliseconds())
}

// ParseHeartBeat parses a "cx,cy" heart-beat header value.
func ParseHeartBeat(value string) (HeartBeat, error) {
	sendPart, recvPart, ok := strings.Cut(strings.TrimSpace(value), ",")
	if !ok {
		return HeartBeat{}, fmt.Errorf("malformed heart-beat %q", value)
	}
	send, err := strconv.ParseInt(strings.TrimSpace(sendPart), 10, 64)
	if err != nil {
		return HeartBeat{}, fmt.Errorf("malformed heart-beat %q", value)
	}
	recv, err := strconv.ParseInt(strings.TrimSpace(recvPart), 10, 64)
	if err != nil {
		return HeartBeat{}, fmt.Errorf("malformed heart-beat %q", value)
	}
	return HeartBeat{
		SendInterval: time.Duration(send) * time.Millisecond,
		RecvInterval: time.Duration(recv) * time.Millisecond,
	}, nil
}

// Negotiate resolves the effective intervals between a client declaration
// and the server's CONNECTED response. The returned send interval is how
// often the client must emit data, recv how often it must hear from the
// server; zero disables a direction.
func Negotiate(client, server HeartBeat) (send, recv time.Duration) {
	if client.SendInterval > 0 && server.RecvInterval > 0 {
		send = maxDuration(client.SendInterval, server.RecvInterval)
	}
	if client.RecvInterval > 0 && server.SendInterval > 0 {
		recv = maxDuration(client.RecvInterval, server.SendInterval)
	}
	return send, recv
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
