package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readBufSize bounds a single pump read.
const readBufSize = 4096

// pump reads one output channel of the shell and forwards every read as a
// chunk. Bytes are decoded as UTF-8; invalid sequences become U+FFFD and a
// rune split across two reads is held back until it is complete.
func pump(r io.Reader, sessionID string, stream Stream, sink Sink, logger *slog.Logger) {
	decoded := transform.NewReader(r, unicode.UTF8.NewDecoder())
	buf := make([]byte, readBufSize)

	logger.Debug("pump started", "session", sessionID, "stream", stream)

	for {
		n, err := decoded.Read(buf)
		if n > 0 {
			sink.Output(Chunk{
				SessionID: sessionID,
				Stream:    stream,
				Data:      string(buf[:n]),
				Timestamp: time.Now().UTC(),
			})
		}

		switch {
		case err == nil && n == 0:
			logger.Debug("pump end of stream", "session", sessionID, "stream", stream)
			return
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			logger.Debug("pump end of stream", "session", sessionID, "stream", stream)
			return
		default:
			logger.Warn("pump read error", "session", sessionID, "stream", stream, "error", err)
			sink.Output(Chunk{
				SessionID: sessionID,
				Stream:    stream,
				Data:      fmt.Sprintf("\r\n[%s read error: %v]\r\n", stream, err),
				Timestamp: time.Now().UTC(),
			})
			return
		}
	}
}
