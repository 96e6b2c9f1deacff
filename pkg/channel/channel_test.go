package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlink/earlink-go/pkg/fault"
)

// fakeTransport records writes and lets the test inject receipts.
type fakeTransport struct {
	mu       sync.Mutex
	onData   func([]byte)
	onClose  func(error)
	openErr  error
	writeErr error
	writes   chan []byte
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{writes: make(chan []byte, 16)}
}

func (f *fakeTransport) Open(context.Context) error { return f.openErr }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) Write(data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes <- append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) SetReceiveHandler(fn func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onData = fn
}

func (f *fakeTransport) SetCloseHandler(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClose = fn
}

func (f *fakeTransport) deliver(data []byte) {
	f.mu.Lock()
	fn := f.onData
	f.mu.Unlock()
	fn(data)
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	fn := f.onClose
	f.mu.Unlock()
	fn(err)
}

func openConn(t *testing.T) (*Conn, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	c := NewConn("AA:BB:CC:DD:EE:FF", TypeStream, tr, Config{Timeout: time.Second})
	require.NoError(t, c.Open(context.Background()))
	return c, tr
}

type sendResult struct {
	data []byte
	err  error
}

func sendAsync(c *Conn, cmd, prefix []byte, timeout time.Duration) <-chan sendResult {
	out := make(chan sendResult, 1)
	go func() {
		data, err := c.SendCommand(context.Background(), cmd, prefix, timeout)
		out <- sendResult{data, err}
	}()
	return out
}

func TestSendUnfiltered(t *testing.T) {
	c, tr := openConn(t)

	res := sendAsync(c, []byte{0x02, 0x02, 0x01, 0x00}, nil, 0)
	assert.Equal(t, []byte{0x02, 0x02, 0x01, 0x00}, <-tr.writes)

	tr.deliver(nil)
	tr.deliver([]byte{0x02, 0x02, 0x03, 0x01, 0x50})

	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, []byte{0x02, 0x02, 0x03, 0x01, 0x50}, r.data)
}

func TestSendPrefixAccumulates(t *testing.T) {
	c, tr := openConn(t)

	res := sendAsync(c, []byte{0x01}, []byte{0x3E, 0x0C}, 0)
	<-tr.writes

	// An acknowledgement for another data type is skipped.
	tr.deliver([]byte{0x3E, 0x01, 0x00, 0x00, 0x01, 0x3C})
	tr.deliver([]byte{0x3E})
	tr.deliver([]byte{0x0C, 0x05, 0x03})

	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, []byte{0x3E, 0x0C, 0x05, 0x03}, r.data)
}

func TestSendSingleOutstanding(t *testing.T) {
	c, tr := openConn(t)

	res := sendAsync(c, []byte{0x01}, nil, 0)
	<-tr.writes

	_, err := c.SendCommand(context.Background(), []byte{0x02}, nil, 0)
	assert.ErrorIs(t, err, ErrBusy)

	tr.deliver([]byte{0xFF})
	r := <-res
	require.NoError(t, r.err)

	// The slot is free again.
	res = sendAsync(c, []byte{0x03}, nil, 0)
	<-tr.writes
	tr.deliver([]byte{0xEE})
	assert.Equal(t, []byte{0xEE}, (<-res).data)
}

func TestSendTimeoutDropsLateData(t *testing.T) {
	c, tr := openConn(t)

	_, err := c.SendCommand(context.Background(), []byte{0x01}, nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, fault.KindCommandTimeout, fault.KindOf(err))
	<-tr.writes

	// Late reply goes nowhere.
	tr.deliver([]byte{0xAA})

	res := sendAsync(c, []byte{0x02}, nil, 0)
	<-tr.writes
	tr.deliver([]byte{0xBB})
	assert.Equal(t, []byte{0xBB}, (<-res).data)
}

func TestSendTimeoutIndependentOfPrefix(t *testing.T) {
	c, tr := openConn(t)

	res := sendAsync(c, []byte{0x01}, []byte{0x3E, 0x0C}, 30*time.Millisecond)
	<-tr.writes
	tr.deliver([]byte{0x3E})

	r := <-res
	assert.Equal(t, fault.KindCommandTimeout, fault.KindOf(r.err))
}

func TestSendCancelled(t *testing.T) {
	c, tr := openConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(ctx, []byte{0x01}, nil, time.Minute)
		out <- err
	}()
	<-tr.writes
	cancel()
	assert.ErrorIs(t, <-out, context.Canceled)
}

func TestSendRequiresOpen(t *testing.T) {
	c := NewConn("addr", TypeStream, newFakeTransport(), Config{})
	_, err := c.SendCommand(context.Background(), []byte{0x01}, nil, 0)
	assert.Equal(t, fault.KindNotConnected, fault.KindOf(err))
}

func TestSendWriteError(t *testing.T) {
	c, tr := openConn(t)
	tr.writeErr = errors.New("broken pipe")

	_, err := c.SendCommand(context.Background(), []byte{0x01}, nil, 0)
	assert.Equal(t, fault.KindChannelClosed, fault.KindOf(err))

	// The failed write released the slot.
	tr.writeErr = nil
	res := sendAsync(c, []byte{0x02}, nil, 0)
	<-tr.writes
	tr.deliver([]byte{0x01})
	assert.NoError(t, (<-res).err)
}

func TestOpenFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.openErr = errors.New("page timeout")
	c := NewConn("addr", TypeStream, tr, Config{})

	err := c.Open(context.Background())
	assert.Equal(t, fault.KindConnectionFailed, fault.KindOf(err))
	assert.False(t, c.IsOpen())
}

func TestCloseFailsPending(t *testing.T) {
	c, tr := openConn(t)

	res := sendAsync(c, []byte{0x01}, nil, time.Minute)
	<-tr.writes
	require.NoError(t, c.Close())

	assert.Equal(t, fault.KindChannelClosed, fault.KindOf((<-res).err))
	assert.True(t, tr.closed)
	assert.False(t, c.IsOpen())
	assert.NoError(t, c.Close())
}

func TestTransportLossNotifies(t *testing.T) {
	c, tr := openConn(t)

	lost := make(chan error, 1)
	c.OnClosed(func(err error) { lost <- err })

	res := sendAsync(c, []byte{0x01}, nil, time.Minute)
	<-tr.writes
	tr.drop(errors.New("link supervision timeout"))

	assert.EqualError(t, <-lost, "link supervision timeout")
	assert.Equal(t, fault.KindChannelClosed, fault.KindOf((<-res).err))
	assert.False(t, c.IsOpen())
}

func TestExplicitCloseDoesNotNotify(t *testing.T) {
	c, tr := openConn(t)
	called := false
	c.OnClosed(func(error) { called = true })

	require.NoError(t, c.Close())
	tr.drop(nil)
	assert.False(t, called)
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"stream", "RFCOMM"} {
		got, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, TypeStream, got)
	}
	got, err := ParseType("gatt")
	require.NoError(t, err)
	assert.Equal(t, TypeCharacteristic, got)

	_, err = ParseType("usb")
	assert.Error(t, err)
}
