package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/pkg/errors"
)

func NewWriter(log logging.Logger) *Writer {
	upgrader := websocket.Upgrader{}
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	return &Writer{
		upgrader: upgrader,
		log:      log,
	}
}

type Writer struct {
	upgrader websocket.Upgrader
	log      logging.Logger
}

// Write upgrades the connection and copies the input channel onto it until
// the channel is closed.
func (w *Writer) Write(rw http.ResponseWriter, r *http.Request, input chan string) error {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading websocket connection")
	}

	for msg := range input {
		// The terminal frontend wants a carriage return before each line.
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte("\r"+msg+"\n")); err != nil {
			w.log.Warn("failed to write ws message", map[string]interface{}{"err": err.Error()})
			return err
		}
	}

	if err = conn.Close(); err != nil {
		w.log.Warn("failed to close ws connection", map[string]interface{}{"err": err.Error()})
	}
	return nil
}
