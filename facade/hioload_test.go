package facade_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/facade"
	"github.com/momentics/hioload-sock/fake"
	"github.com/momentics/hioload-sock/socket"
)

type echo struct{ s *socket.Socket }

func (h *echo) OnRead(p []byte) int { h.s.Send(p); return len(p) }
func (h *echo) OnError(error)       { h.s.Destroy() }

// Full lifecycle: listen, dial, exchange data, reload and shut down.
func TestHioloadFullLifecycle(t *testing.T) {
	cfg := control.DefaultConfig()
	cfg.Workers = 2
	cfg.ConnectTimeout = 2 * time.Second
	h, err := facade.New(&cfg)
	assert.NilError(t, err)
	assert.NilError(t, h.Start())
	assert.NilError(t, h.Start())

	ln, err := h.Listen("127.0.0.1", "0", false, func() (*socket.Socket, error) {
		e := &echo{}
		e.s = h.NewSocket(e)
		return e.s, nil
	}, nil)
	assert.NilError(t, err)

	rec := fake.NewRecorder()
	c, err := h.Dial(context.Background(), "127.0.0.1", strconv.Itoa(ln.GetLocalPort()), false, rec)
	assert.NilError(t, err)
	c.SendString("facade")
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if rec.Data() != "facade" {
			return poll.Continue("received %q", rec.Data())
		}
		return poll.Success()
	}, poll.WithTimeout(5*time.Second))

	state := h.DumpState()
	assert.Equal(t, state["reactor.workers"], 2)
	assert.Assert(t, state["sockets.owned"].(int) >= 3)

	reloaded := make(chan control.Config, 1)
	h.OnReload(func(c control.Config) { reloaded <- c })
	path := filepath.Join(t.TempDir(), "hioload.ini")
	assert.NilError(t, os.WriteFile(path, []byte("[reactor]\nworkers = 3\n"), 0o600))
	assert.NilError(t, h.Reload(path))
	assert.Equal(t, (<-reloaded).Workers, 3)
	assert.Equal(t, h.Reactor().NumWorkers(), 3)

	assert.NilError(t, h.Shutdown())
	assert.NilError(t, h.Shutdown())
	assert.Equal(t, c.State(), socket.Destroyed)
	assert.Equal(t, ln.State(), socket.Destroyed)
	assert.Assert(t, h.Reactor().Closed())
	assert.Equal(t, rec.Finalized(), 1)
}

func TestHioloadDialFailure(t *testing.T) {
	h, err := facade.New(nil)
	assert.NilError(t, err)
	defer h.Shutdown()
	_, err = h.Dial(context.Background(), "127.0.0.1", "no-such-service", false, nil)
	assert.ErrorContains(t, err, "unknown service")
}

func TestHioloadRejectsInvalidConfig(t *testing.T) {
	cfg := control.DefaultConfig()
	cfg.ReadBufferSize = -1
	_, err := facade.New(&cfg)
	assert.Assert(t, err != nil)
}
