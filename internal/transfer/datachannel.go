package transfer

import (
	"sync"

	pion "github.com/pion/webrtc/v4"
)

// dataChannel adapts a pion data channel to Channel. Inbound messages are
// queued until the read loop takes them; OnMessage blocks rather than drop.
type dataChannel struct {
	pc *pion.PeerConnection
	dc *pion.DataChannel

	recv   chan []byte
	done   chan struct{}
	opened chan struct{}

	mu  sync.Mutex
	err error

	openOnce  sync.Once
	closeOnce sync.Once
	endOnce   sync.Once
}

func newDataChannel(pc *pion.PeerConnection, dc *pion.DataChannel) *dataChannel {
	c := &dataChannel{
		pc:     pc,
		dc:     dc,
		recv:   make(chan []byte, 64),
		done:   make(chan struct{}),
		opened: make(chan struct{}),
	}

	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.opened) })
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		select {
		case c.recv <- msg.Data:
		case <-c.done:
		}
	})
	dc.OnError(func(err error) {
		c.setErr(err)
	})
	// OnMessage and OnClose run on the same pion read goroutine, so recv is
	// never written after it is closed.
	dc.OnClose(func() {
		c.end()
		close(c.recv)
	})
	return c
}

func (c *dataChannel) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *dataChannel) end() {
	c.endOnce.Do(func() { close(c.done) })
}

func (c *dataChannel) Send(data []byte) error {
	return c.dc.Send(data)
}

func (c *dataChannel) Recv() <-chan []byte {
	return c.recv
}

func (c *dataChannel) Done() <-chan struct{} {
	return c.done
}

func (c *dataChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *dataChannel) BufferedAmount() uint64 {
	return c.dc.BufferedAmount()
}

func (c *dataChannel) SetBufferedAmountLowThreshold(th uint64) {
	c.dc.SetBufferedAmountLowThreshold(th)
}

func (c *dataChannel) OnBufferedAmountLow(f func()) {
	c.dc.OnBufferedAmountLow(f)
}

func (c *dataChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.end()
		if cerr := c.dc.Close(); cerr != nil {
			err = cerr
		}
		if cerr := c.pc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
