package sender

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dutow/galera/gcache/mocks"
	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/internal/wire"
)

// fakeJoiner listens on loopback and plays the receiver's side of the
// reverse handshake (see Sender.handshake), returning the accepted
// connection for the test to read frames from.
func fakeJoiner(t *testing.T, proposedVersion int) (addr string, accept func() net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		if err := wire.SendHandshake(conn, proposedVersion); err != nil {
			conn.Close()
			return
		}
		if _, err := wire.RecvHandshakeResponse(conn); err != nil {
			conn.Close()
			return
		}
		if err := wire.SendCtrl(conn, wire.COK); err != nil {
			conn.Close()
			return
		}
		connCh <- conn
	}()

	return l.Addr().String(), func() net.Conn {
		t.Helper()
		select {
		case c := <-connCh:
			return c
		}
	}
}

func TestSendHappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	cache.EXPECT().SeqnoGetBuffers(ist.SeqNo(5), gomock.Any()).DoAndReturn(
		func(first ist.SeqNo, bufs []ist.WriteSetAction) (int, error) {
			for i := range bufs {
				bufs[i] = ist.WriteSetAction{SeqNoG: first + ist.SeqNo(i), Kind: ist.ActionWriteSet, Buf: []byte("ws")}
			}
			return len(bufs), nil
		})
	cache.EXPECT().SeqnoUnlock()

	addr, accept := fakeJoiner(t, 8)
	s := New(cache)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), addr, 5, 10, 0) }()

	conn := accept()
	defer conn.Close()

	proto := wire.New(8, true)
	var got []int64
	for {
		action, _, err := proto.RecvOrdered(conn)
		require.NoError(t, err)
		if action.IsEOF() {
			break
		}
		got = append(got, int64(action.SeqNoG))
	}
	require.Equal(t, []int64{5, 6, 7, 8, 9, 10}, got)
	conn.Close() // Send's EOF drain returns once the joiner closes
	require.NoError(t, <-errCh)
}

func TestSendEmptyRangeSendsEOFOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	cache.EXPECT().SeqnoUnlock()

	addr, accept := fakeJoiner(t, 8)
	s := New(cache)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), addr, 0, 0, 0) }()

	conn := accept()
	defer conn.Close()

	proto := wire.New(8, true)
	action, _, err := proto.RecvOrdered(conn)
	require.NoError(t, err)
	require.True(t, action.IsEOF())
	conn.Close() // Send's EOF drain returns once the joiner closes
	require.NoError(t, <-errCh)
}

func TestSendFirstGreaterThanLastSendsEOFOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	cache.EXPECT().SeqnoUnlock()

	addr, accept := fakeJoiner(t, 8)
	s := New(cache)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), addr, 11, 10, 0) }()

	conn := accept()
	defer conn.Close()

	proto := wire.New(8, true)
	action, _, err := proto.RecvOrdered(conn)
	require.NoError(t, err)
	require.True(t, action.IsEOF())
	conn.Close() // Send's EOF drain returns once the joiner closes
	require.NoError(t, <-errCh)
}

func TestSendMarksPreloadAboveThreshold(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	cache.EXPECT().SeqnoGetBuffers(ist.SeqNo(5), gomock.Any()).DoAndReturn(
		func(first ist.SeqNo, bufs []ist.WriteSetAction) (int, error) {
			for i := range bufs {
				bufs[i] = ist.WriteSetAction{SeqNoG: first + ist.SeqNo(i), Kind: ist.ActionWriteSet, Buf: []byte("ws")}
			}
			return len(bufs), nil
		})
	cache.EXPECT().SeqnoUnlock()

	addr, accept := fakeJoiner(t, 8)
	s := New(cache)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), addr, 5, 8, 7) }()

	conn := accept()
	defer conn.Close()

	proto := wire.New(8, true)
	preloadBySeqno := map[int64]bool{}
	for {
		action, preload, err := proto.RecvOrdered(conn)
		require.NoError(t, err)
		if action.IsEOF() {
			break
		}
		preloadBySeqno[int64(action.SeqNoG)] = preload
	}
	require.False(t, preloadBySeqno[5])
	require.False(t, preloadBySeqno[6])
	require.True(t, preloadBySeqno[7])
	require.True(t, preloadBySeqno[8])
	conn.Close() // Send's EOF drain returns once the joiner closes
	require.NoError(t, <-errCh)
}

func TestSendCacheExhaustedBeforeLastIsProtocolError(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	cache.EXPECT().SeqnoGetBuffers(ist.SeqNo(5), gomock.Any()).Return(0, nil)
	cache.EXPECT().SeqnoUnlock()

	addr, accept := fakeJoiner(t, 8)
	s := New(cache)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), addr, 5, 10, 0) }()

	conn := accept()
	defer conn.Close()

	err := <-errCh
	require.Error(t, err)
	require.ErrorIs(t, err, ist.ErrProtocol)
}

// TestSendCancelUnblocksSend uses a joiner that accepts the TCP connection
// but never completes the handshake, leaving Send blocked on a handshake
// read. Cancelling ctx must close the socket and unblock it promptly.
func TestSendCancelUnblocksSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	cache.EXPECT().SeqnoUnlock()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	acceptedCh := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			acceptedCh <- conn
		}
	}()

	s := New(cache)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(ctx, l.Addr().String(), 5, 10, 0) }()

	conn := <-acceptedCh
	defer conn.Close()

	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not unblock Send")
	}
}
