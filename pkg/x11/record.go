package x11

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/record"
	"go.uber.org/zap"
)

// captureQueueSize bounds the buffer between the capture pump and the
// event loop.
const captureQueueSize = 256

// Recorder owns the dedicated capture connection. The server copies
// every device key and button transition, whoever it is delivered to,
// onto this connection's record stream.
type Recorder struct {
	conn   *xgb.Conn
	ctx    record.Context
	events chan RecordedEvent
	log    *zap.SugaredLogger
}

// OpenRecorder connects a second time and arms a record context over
// the press/release event range for all clients. The stream starts
// flowing immediately.
func OpenRecorder(name string, log *zap.SugaredLogger) (*Recorder, error) {
	conn, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("connect to display: %w", err)
	}

	if err := record.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init record extension: %w", err)
	}

	ctx, err := record.NewContextId(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("allocate record context: %w", err)
	}

	ranges := []record.Range{{
		DeviceEvents: record.Range8{First: evKeyPress, Last: evButtonRelease},
	}}
	clients := []record.ClientSpec{record.CsAllClients}
	// The context id comes before the element header. Both are small
	// integers, so keep the header typed.
	var header record.ElementHeader
	err = record.CreateContextChecked(conn, ctx, header, 1, 1, clients, ranges).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create record context: %w", err)
	}

	r := &Recorder{
		conn:   conn,
		ctx:    ctx,
		events: make(chan RecordedEvent, captureQueueSize),
		log:    log,
	}
	go r.pump()

	return r, nil
}

// Close tears the connection down; the server discards the context and
// the event channel closes once the pump drains.
func (r *Recorder) Close() {
	r.conn.Close()
}

// Events delivers decoded capture records. The channel closes when the
// connection dies.
func (r *Recorder) Events() <-chan RecordedEvent {
	return r.events
}

func (r *Recorder) pump() {
	defer close(r.events)

	cookie := record.EnableContext(r.conn, r.ctx)
	for {
		reply, err := cookie.Reply()
		if err != nil {
			r.log.Infow("capture stream closed", "error", err)
			return
		}
		if reply == nil {
			return
		}
		r.dispatch(reply)
	}
}

// Reply categories of interest; everything else is stream control.
const categoryFromServer = 0

func (r *Recorder) dispatch(reply *record.EnableContextReply) {
	if reply.Category != categoryFromServer || reply.ClientSwapped {
		return
	}

	data := reply.Data
	for len(data) >= eventSize {
		ev, ok := decodeEvent(data[:eventSize])
		data = data[eventSize:]
		if !ok {
			continue
		}
		r.events <- ev
	}
}
