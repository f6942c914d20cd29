package lsp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"

	"quill/internal/logging"
)

type stdrwc struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (s stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s stdrwc) Close() error {
	return errors.Join(s.r.Close(), s.w.Close())
}

// StdioStream frames LSP messages with Content-Length headers over in/out.
func StdioStream(in io.ReadCloser, out io.WriteCloser) jsonrpc2.ObjectStream {
	return jsonrpc2.NewBufferedStream(stdrwc{r: in, w: out}, jsonrpc2.VSCodeObjectCodec{})
}

// WebsocketHandler upgrades each request to a websocket and serves it with
// a fresh Server from newServer.
func WebsocketHandler(ctx context.Context, newServer func() *Server, logger *slog.Logger) http.Handler {
	logger = logging.OrDiscard(logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("lsp: websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		logger.Info("lsp: websocket client connected", "remote", r.RemoteAddr)
		srv := newServer()
		if err := srv.Serve(ctx, wsstream.NewObjectStream(conn)); err != nil {
			logger.Warn("lsp: websocket session ended", "remote", r.RemoteAddr, "err", err)
			return
		}
		logger.Info("lsp: websocket client disconnected", "remote", r.RemoteAddr)
	})
}
