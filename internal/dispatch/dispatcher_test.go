package dispatch

import (
	"testing"
	"time"

	"github.com/gmbridge-project/gmbridge/internal/protocol"
)

func frameAt(seqNo int, content string, arrivedAt time.Time) protocol.Frame {
	return protocol.Frame{
		SeqNo:     seqNo,
		Content:   content,
		Raw:       content,
		ArrivedAt: arrivedAt,
	}
}

func TestCollectorGathersFramesInWindow(t *testing.T) {
	d := NewDispatcher()
	first := d.RegisterCollector("req-1")

	d.Dispatch(frameAt(2, "one", time.Now()))
	d.Dispatch(frameAt(2, "two", time.Now()))

	select {
	case <-first:
	default:
		t.Fatal("first-frame channel not closed after dispatch")
	}

	frames := d.TakeFrames("req-1")
	if len(frames) != 2 {
		t.Fatalf("collected %d frames, want 2", len(frames))
	}
	if frames[0].Content != "one" || frames[1].Content != "two" {
		t.Errorf("frames out of order: %q, %q", frames[0].Content, frames[1].Content)
	}
	if d.OpenCollectors() != 0 {
		t.Errorf("collector still open after TakeFrames")
	}
}

func TestCollectorAcceptsFrameWithinSlack(t *testing.T) {
	d := NewDispatcher()
	d.RegisterCollector("req-1")

	// Arrived just before registration, inside the slack window.
	early := frameAt(2, "early", time.Now().Add(-ArrivalSlack/2))
	d.Dispatch(early)

	frames := d.TakeFrames("req-1")
	if len(frames) != 1 {
		t.Fatalf("collected %d frames, want 1", len(frames))
	}
}

func TestCollectorRejectsStaleFrame(t *testing.T) {
	d := NewDispatcher()
	first := d.RegisterCollector("req-1")

	stale := frameAt(2, "stale", time.Now().Add(-ArrivalSlack-time.Second))
	d.Dispatch(stale)

	select {
	case <-first:
		t.Fatal("stale frame signalled the collector")
	default:
	}
	if frames := d.TakeFrames("req-1"); len(frames) != 0 {
		t.Errorf("collected %d stale frames, want 0", len(frames))
	}
}

func TestConcurrentCollectorsBothReceive(t *testing.T) {
	d := NewDispatcher()
	d.RegisterCollector("req-a")
	d.RegisterCollector("req-b")

	d.Dispatch(frameAt(2, "shared", time.Now()))

	a := d.TakeFrames("req-a")
	b := d.TakeFrames("req-b")
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("frame counts a=%d b=%d, want 1 and 1", len(a), len(b))
	}
	if a[0].Content != "shared" || b[0].Content != "shared" {
		t.Errorf("both collectors should hold the same frame")
	}
}

func TestCancelCollectorDiscards(t *testing.T) {
	d := NewDispatcher()
	d.RegisterCollector("req-1")
	d.Dispatch(frameAt(2, "x", time.Now()))
	d.CancelCollector("req-1")

	if frames := d.TakeFrames("req-1"); frames != nil {
		t.Errorf("cancelled collector returned %d frames", len(frames))
	}
	if d.OpenCollectors() != 0 {
		t.Error("collector still open after cancel")
	}
}

func TestSeqWaiterMatchesOnce(t *testing.T) {
	d := NewDispatcher()
	ok := d.RegisterSeqWaiter("login-ok", protocol.SeqLoginOK)

	d.Dispatch(frameAt(3, "other", time.Now()))
	select {
	case <-ok:
		t.Fatal("waiter fired on non-matching sequence number")
	default:
	}

	d.Dispatch(frameAt(protocol.SeqLoginOK, "#Y/登录成功", time.Now()))
	select {
	case f := <-ok:
		if f.Content != "#Y/登录成功" {
			t.Errorf("waiter got %q", f.Content)
		}
	default:
		t.Fatal("waiter did not receive matching frame")
	}

	// The waiter is one-shot; a second matching frame goes nowhere.
	d.Dispatch(frameAt(protocol.SeqLoginOK, "again", time.Now()))
	select {
	case f := <-ok:
		t.Errorf("one-shot waiter delivered a second frame %q", f.Content)
	default:
	}
}

func TestCancelSeqWaiter(t *testing.T) {
	d := NewDispatcher()
	ch := d.RegisterSeqWaiter("login-fail", protocol.SeqLoginFailed)
	d.CancelSeqWaiter("login-fail")

	d.Dispatch(frameAt(protocol.SeqLoginFailed, "密码错误", time.Now()))
	select {
	case <-ch:
		t.Error("cancelled waiter received a frame")
	default:
	}
}

func TestDispatchStampsMissingArrivalTime(t *testing.T) {
	d := NewDispatcher()
	d.RegisterCollector("req-1")

	d.Dispatch(protocol.Frame{SeqNo: 2, Content: "unstamped"})

	frames := d.TakeFrames("req-1")
	if len(frames) != 1 {
		t.Fatalf("collected %d frames, want 1", len(frames))
	}
	if frames[0].ArrivedAt.IsZero() {
		t.Error("ArrivedAt not stamped on dispatch")
	}
}
