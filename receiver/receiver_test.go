package receiver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	amocks "github.com/dutow/galera/applyhandler/mocks"
	"github.com/dutow/galera/internal/config"
	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/internal/wire"
)

// fakeDonor dials the receiver's advertised address and plays the sender's
// side of the handshake, returning the connection for the test to drive
// the rest of the session.
func fakeDonor(t *testing.T, addr string) net.Conn {
	t.Helper()
	_, hostport, err := wire.ParseAddr(addr)
	require.NoError(t, err)
	conn, err := net.Dial("tcp", hostport)
	require.NoError(t, err)

	proposed, err := wire.RecvHandshake(conn)
	require.NoError(t, err)
	require.NoError(t, wire.SendHandshakeResponse(conn, proposed))
	code, err := wire.RecvCtrl(conn)
	require.NoError(t, err)
	require.Equal(t, wire.COK, code)
	return conn
}

const testSourceID = "8d6b3f1a-1f0e-4a2c-9b0a-7b2e5b9b4e10"

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{RecvAddr: "tcp://127.0.0.1:0"}
}

func TestHappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := amocks.NewMockHandler(ctrl)

	var applied []int64
	handler.EXPECT().IstTrx(gomock.Any(), true, false).DoAndReturn(
		func(action ist.WriteSetAction, mustApply, preload bool) error {
			applied = append(applied, int64(action.SeqNoG))
			return nil
		}).Times(6)
	handler.EXPECT().IstEnd(ist.CodeOK)

	r := New(handler)
	addr, err := r.Prepare(testConfig(t), 5, 10, 8, testSourceID)
	require.NoError(t, err)

	conn := fakeDonor(t, addr)
	defer conn.Close()

	r.Ready(5)

	proto := wire.New(8, true)
	for s := int64(5); s <= 10; s++ {
		require.NoError(t, proto.SendOrdered(conn, ist.WriteSetAction{SeqNoG: ist.SeqNo(s), Kind: ist.ActionWriteSet, Buf: []byte("ws")}, false))
	}
	require.NoError(t, wire.SendCtrl(conn, wire.CEOF))

	cur := r.Finished()
	require.Equal(t, ist.SeqNo(10), cur)
	require.Equal(t, []int64{5, 6, 7, 8, 9, 10}, applied)
}

func TestOverlapPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := amocks.NewMockHandler(ctrl)

	var mustApplyBySeqno = map[int64]bool{}
	handler.EXPECT().IstTrx(gomock.Any(), gomock.Any(), false).DoAndReturn(
		func(action ist.WriteSetAction, mustApply, preload bool) error {
			mustApplyBySeqno[int64(action.SeqNoG)] = mustApply
			return nil
		}).Times(8)
	handler.EXPECT().IstEnd(ist.CodeOK)

	r := New(handler)
	addr, err := r.Prepare(testConfig(t), 5, 10, 8, testSourceID)
	require.NoError(t, err)
	conn := fakeDonor(t, addr)
	defer conn.Close()

	r.Ready(5)

	proto := wire.New(8, true)
	for s := int64(3); s <= 10; s++ {
		require.NoError(t, proto.SendOrdered(conn, ist.WriteSetAction{SeqNoG: ist.SeqNo(s), Kind: ist.ActionWriteSet, Buf: []byte("ws")}, false))
	}
	require.NoError(t, wire.SendCtrl(conn, wire.CEOF))

	cur := r.Finished()
	require.Equal(t, ist.SeqNo(10), cur)
	require.False(t, mustApplyBySeqno[3])
	require.False(t, mustApplyBySeqno[4])
	require.True(t, mustApplyBySeqno[5])
	require.True(t, mustApplyBySeqno[10])
}

func TestShortStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := amocks.NewMockHandler(ctrl)
	handler.EXPECT().IstTrx(gomock.Any(), true, false).Return(nil).Times(3)
	handler.EXPECT().IstEnd(ist.CodeProtocol)

	r := New(handler)
	addr, err := r.Prepare(testConfig(t), 5, 10, 8, testSourceID)
	require.NoError(t, err)
	conn := fakeDonor(t, addr)
	defer conn.Close()

	r.Ready(5)

	proto := wire.New(8, true)
	for s := int64(5); s <= 7; s++ {
		require.NoError(t, proto.SendOrdered(conn, ist.WriteSetAction{SeqNoG: ist.SeqNo(s), Kind: ist.ActionWriteSet, Buf: []byte("ws")}, false))
	}
	require.NoError(t, wire.SendCtrl(conn, wire.CEOF))

	cur := r.Finished()
	require.Equal(t, ist.SeqNo(7), cur)
}

func TestOutOfOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := amocks.NewMockHandler(ctrl)
	handler.EXPECT().IstTrx(gomock.Any(), true, false).Return(nil).Times(1)
	handler.EXPECT().IstEnd(ist.CodeInvalid)

	r := New(handler)
	addr, err := r.Prepare(testConfig(t), 5, 10, 8, testSourceID)
	require.NoError(t, err)
	conn := fakeDonor(t, addr)
	defer conn.Close()

	r.Ready(5)

	proto := wire.New(8, true)
	require.NoError(t, proto.SendOrdered(conn, ist.WriteSetAction{SeqNoG: 5, Kind: ist.ActionWriteSet, Buf: []byte("ws")}, false))
	require.NoError(t, proto.SendOrdered(conn, ist.WriteSetAction{SeqNoG: 7, Kind: ist.ActionWriteSet, Buf: []byte("ws")}, false))

	cur := r.Finished()
	require.Equal(t, ist.SeqNo(5), cur)
}

func TestPrepareRejectsNonUUIDSourceID(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := amocks.NewMockHandler(ctrl)

	r := New(handler)
	_, err := r.Prepare(testConfig(t), 5, 10, 8, "not-a-uuid")
	require.ErrorIs(t, err, ist.ErrInvalidConfig)
}

func TestEarlyCancelBeforeReady(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := amocks.NewMockHandler(ctrl)
	handler.EXPECT().IstEnd(gomock.Any())

	r := New(handler)
	addr, err := r.Prepare(testConfig(t), 5, 10, 8, testSourceID)
	require.NoError(t, err)
	_ = addr

	cur := r.Finished()
	require.Equal(t, ist.Undefined, cur)
}

func TestFinishedIsNoOpAfterCompletion(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := amocks.NewMockHandler(ctrl)
	handler.EXPECT().IstTrx(gomock.Any(), true, false).Return(nil).Times(1)
	handler.EXPECT().IstEnd(ist.CodeOK)

	r := New(handler)
	addr, err := r.Prepare(testConfig(t), 5, 5, 8, testSourceID)
	require.NoError(t, err)
	conn := fakeDonor(t, addr)
	defer conn.Close()

	r.Ready(5)
	proto := wire.New(8, true)
	require.NoError(t, proto.SendOrdered(conn, ist.WriteSetAction{SeqNoG: 5, Kind: ist.ActionWriteSet, Buf: []byte("ws")}, false))
	require.NoError(t, wire.SendCtrl(conn, wire.CEOF))

	first := r.Finished()
	require.Equal(t, ist.SeqNo(5), first)

	// A second call must not hang or re-invoke the handler.
	done := make(chan ist.SeqNo, 1)
	go func() { done <- r.Finished() }()
	select {
	case second := <-done:
		require.Equal(t, first, second)
	case <-time.After(time.Second):
		t.Fatal("second Finished() call hung")
	}
}
