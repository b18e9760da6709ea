package remote

import (
	"context"
	"io"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/agentherd/agentherd/internal/errs"
)

// Attach opens a websocket terminal to a remote session, copying in to the
// process input and process output to out. It returns when the remote closes
// the stream (process exit or server shutdown), in ends, or ctx is
// cancelled.
func (c *Client) Attach(ctx context.Context, name string, in io.Reader, out io.Writer) error {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/sessions/" + name + "/attach"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return apiError(resp)
		}
		return errs.Wrapf(err, "attach to %s failed", url)
	}
	defer conn.Close()

	done := make(chan error, 2)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- nil
				return
			}
			if _, err := out.Write(data); err != nil {
				done <- err
				return
			}
		}
	}()

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					done <- nil
					return
				}
			}
			if err != nil {
				// Input ending (EOF, detach key) ends the attach.
				done <- nil
				return
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
