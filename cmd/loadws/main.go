// loadws exercises the realtime endpoint with concurrent short-lived
// connection cycles: connect, subscribe to the personal chat queue, send
// a message per second, disconnect after ten seconds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vibez-client/internal/stomp"
)

const (
	cycleLength  = 10 * time.Second
	sendInterval = time.Second
)

type counters struct {
	cycles    atomic.Int64
	failures  atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
	connectNs atomic.Int64
}

func main() {
	wsURL := flag.String("url", "ws://localhost:8080/ws-raw", "realtime websocket url")
	token := flag.String("token", os.Getenv("VIBEZ_AUTH_TOKEN"), "bearer token")
	roomID := flag.String("room", "", "target room id for sends")
	clients := flag.Int("clients", 50, "concurrent connection cycles")
	duration := flag.Duration("duration", 2*time.Minute, "total test duration")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *token == "" {
		logger.Fatal().Msg("a bearer token is required (flag -token or VIBEZ_AUTH_TOKEN)")
	}
	if *roomID == "" {
		logger.Fatal().Msg("a target room id is required (flag -room)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	stats := &counters{}
	var wg sync.WaitGroup
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := runCycle(ctx, *wsURL, *token, *roomID, stats); err != nil && ctx.Err() == nil {
					stats.failures.Add(1)
					logger.Debug().Err(err).Msg("cycle failed")
				}
			}
		}()
	}
	wg.Wait()

	cycles := stats.cycles.Load()
	var avgConnect time.Duration
	if cycles > 0 {
		avgConnect = time.Duration(stats.connectNs.Load() / cycles)
	}
	logger.Info().
		Int64("cycles", cycles).
		Int64("failures", stats.failures.Load()).
		Int64("sent", stats.sent.Load()).
		Int64("received", stats.received.Load()).
		Dur("avg_connect", avgConnect).
		Msg("realtime load test finished")
}

// runCycle performs one connect/subscribe/chatter/disconnect sequence the
// way a short-lived client session would.
func runCycle(ctx context.Context, wsURL, token, roomID string, stats *counters) error {
	start := time.Now()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	connect := stomp.NewFrame(stomp.CmdConnect,
		stomp.HdrAcceptVersion, "1.1,1.0",
		stomp.HdrHeartBeat, "10000,10000",
		stomp.HdrAuthorization, "Bearer "+token,
	)
	if err := conn.WriteMessage(websocket.TextMessage, stomp.Marshal(connect)); err != nil {
		return fmt.Errorf("connect frame: %w", err)
	}
	if err := expectConnected(conn); err != nil {
		return err
	}
	stats.connectNs.Add(time.Since(start).Nanoseconds())

	subscribe := stomp.NewFrame(stomp.CmdSubscribe,
		stomp.HdrID, "sub-0",
		stomp.HdrDestination, "/user/queue/chat-messages",
	)
	if err := conn.WriteMessage(websocket.TextMessage, stomp.Marshal(subscribe)); err != nil {
		return fmt.Errorf("subscribe frame: %w", err)
	}

	// Count inbound frames until the cycle ends.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if stomp.IsHeartbeat(raw) {
				continue
			}
			if frame, err := stomp.Parse(raw); err == nil && frame.Command == stomp.CmdMessage {
				stats.received.Add(1)
			}
		}
	}()

	deadline := time.After(cycleLength)
	ticker := time.NewTicker(sendInterval)
	defer ticker.Stop()
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			disconnect := stomp.NewFrame(stomp.CmdDisconnect)
			_ = conn.WriteMessage(websocket.TextMessage, stomp.Marshal(disconnect))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
			<-done
			stats.cycles.Add(1)
			return nil
		case <-ticker.C:
			seq++
			send := stomp.NewFrame(stomp.CmdSend,
				stomp.HdrDestination, "/app/chat/"+roomID+"/send",
				stomp.HdrContentType, "application/json",
			)
			send.Body = []byte(fmt.Sprintf(`{"content":"load test message %d","reelId":null}`, seq))
			if err := conn.WriteMessage(websocket.TextMessage, stomp.Marshal(send)); err != nil {
				return fmt.Errorf("send frame: %w", err)
			}
			stats.sent.Add(1)
		}
	}
}

func expectConnected(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read connected: %w", err)
		}
		if stomp.IsHeartbeat(raw) {
			continue
		}
		frame, err := stomp.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse connected: %w", err)
		}
		switch frame.Command {
		case stomp.CmdConnected:
			return nil
		case stomp.CmdError:
			return fmt.Errorf("broker error: %s", frame.Header(stomp.HdrMessage))
		}
	}
}
