package relay

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/radiogate/radiogate/internal/core/forms"
	"github.com/radiogate/radiogate/internal/core/session"
)

// transferWorker drives one file or form transfer to completion.
// Outbound workers carry the path they were handed at dispatch time;
// inbound workers carry the destination directory.
type transferWorker struct {
	c       *Coordinator
	sess    session.Session
	dir     session.Direction
	payload string

	enabled     atomic.Bool
	lastPercent atomic.Int64
	done        chan struct{}
}

func newTransferWorker(c *Coordinator, sess session.Session, dir session.Direction, payload string) *transferWorker {
	w := &transferWorker{
		c:       c,
		sess:    sess,
		dir:     dir,
		payload: payload,
		done:    make(chan struct{}),
	}
	w.enabled.Store(true)
	return w
}

// Stop disables the worker, force-closes the session if requested and
// joins the worker goroutine before returning
func (w *transferWorker) Stop(force bool) {
	w.enabled.Store(false)
	_ = w.sess.Close(force)
	<-w.done
}

func (w *transferWorker) run() {
	defer close(w.done)
	defer w.c.End(w.sess.ID())
	defer func() { _ = w.sess.Close(false) }()

	w.sess.OnProgress(w.progress)

	if w.dir == session.DirectionOut {
		w.runSend()
		return
	}
	w.runReceive()
}

func (w *transferWorker) runSend() {
	name := filepath.Base(w.payload)
	ok, err := w.sess.SendFile(w.payload)
	switch {
	case err != nil:
		w.reportInterrupted(err.Error())
	case !ok:
		w.reportInterrupted("rejected by peer")
	default:
		w.c.sink.SessionStatus(w.sess.ID(), fmt.Sprintf("sent %s", name))
	}
}

func (w *transferWorker) runReceive() {
	path, err := w.sess.RecvToFile(w.payload)
	if err != nil {
		w.reportInterrupted(err.Error())
		return
	}
	if path == "" {
		w.c.sink.SessionStatus(w.sess.ID(), "session carried no content")
		return
	}

	if w.sess.Capability() == session.CapForm {
		w.stampRoute(path)
		w.c.sink.FormReceived(path)
	} else {
		w.c.sink.FileReceived(path)
	}
	w.c.sink.SessionStatus(w.sess.ID(), fmt.Sprintf("received %s", filepath.Base(path)))
}

// stampRoute appends the local callsign to the received form's routing
// path, so downstream relays can detect and break forwarding loops
func (w *transferWorker) stampRoute(path string) {
	form, err := forms.Load(path)
	if err != nil {
		w.c.log.Warn("cannot stamp route on received form", "path", path, "error", err)
		return
	}
	form.AppendHop(w.c.cfg.Callsign)
	if err := forms.Save(path, form); err != nil {
		w.c.log.Warn("cannot save stamped form", "path", path, "error", err)
	}
}

func (w *transferWorker) reportInterrupted(reason string) {
	msg := fmt.Sprintf("interrupted at %d%%", w.lastPercent.Load())
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	w.c.sink.SessionStatus(w.sess.ID(), msg)
}

// progress forwards per-session transfer statistics to the status sink
func (w *transferWorker) progress(st session.Stats) {
	if !w.enabled.Load() {
		return
	}

	transferred := st.BytesSent
	if w.dir == session.DirectionIn {
		transferred = st.BytesReceived
	}

	percent := int64(0)
	if st.TotalSize > 0 {
		percent = transferred * 100 / st.TotalSize
		if percent > 100 {
			percent = 100
		}
	}
	w.lastPercent.Store(percent)

	msg := fmt.Sprintf("%d%%", percent)
	if st.Retries > 0 {
		msg = fmt.Sprintf("%s, %d retries", msg, st.Retries)
	}
	if st.StartedAt != nil {
		if elapsed := time.Since(*st.StartedAt).Seconds(); elapsed > 0 {
			msg = fmt.Sprintf("%s, %.0f B/s", msg, float64(transferred)/elapsed)
		}
	}
	w.c.sink.SessionStatus(w.sess.ID(), msg)
}
