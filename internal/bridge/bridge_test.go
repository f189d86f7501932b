package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gmbridge-project/gmbridge/internal/dispatch"
	"github.com/gmbridge-project/gmbridge/internal/protocol"
)

// stubSender records sends and optionally replays scripted frames into the
// dispatcher, standing in for the live connector.
type stubSender struct {
	mu        sync.Mutex
	connected bool
	sendErr   error
	sent      []sentCommand
	onSend    func(seqNo int, body, account string)
}

type sentCommand struct {
	seqNo   int
	body    string
	account string
}

func (s *stubSender) Send(seqNo int, body, account string) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentCommand{seqNo, body, account})
	onSend := s.onSend
	err := s.sendErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if onSend != nil {
		onSend(seqNo, body, account)
	}
	return nil
}

func (s *stubSender) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubSender) lastSent(t *testing.T) sentCommand {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return s.sent[len(s.sent)-1]
}

func TestInvokeCollectsResponseFrames(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}
	sender.onSend = func(seqNo int, body, account string) {
		go func() {
			d.Dispatch(protocol.Frame{SeqNo: seqNo, Content: "查询结果", ArrivedAt: time.Now()})
		}()
	}

	b := New(sender, d, "a123456", time.Second)
	res, err := b.Invoke(context.Background(), 2, "查询信息", map[string]interface{}{"玩家id": "1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %q, want %q", res.Status, StatusSuccess)
	}
	if len(res.Frames) != 1 || res.Frames[0].Content != "查询结果" {
		t.Errorf("frames = %+v", res.Frames)
	}

	sent := sender.lastSent(t)
	if sent.seqNo != 2 || sent.account != "a123456" {
		t.Errorf("sent %+v", sent)
	}
	if !strings.Contains(sent.body, `["文本"]="查询信息"`) {
		t.Errorf("body %q missing command name", sent.body)
	}
}

func TestInvokeGathersFrameBurst(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}
	sender.onSend = func(seqNo int, body, account string) {
		go func() {
			d.Dispatch(protocol.Frame{SeqNo: seqNo, Content: "第一页", ArrivedAt: time.Now()})
			time.Sleep(20 * time.Millisecond)
			d.Dispatch(protocol.Frame{SeqNo: seqNo, Content: "第二页", ArrivedAt: time.Now()})
		}()
	}

	b := New(sender, d, "a123456", time.Second)
	res, err := b.Invoke(context.Background(), 7, "查询角色", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Frames) != 2 {
		t.Fatalf("collected %d frames, want 2", len(res.Frames))
	}
	if res.Frames[0].Content != "第一页" || res.Frames[1].Content != "第二页" {
		t.Errorf("frames out of order: %+v", res.Frames)
	}
}

// Sixty-four overlapping requests share one link. Collectors fan out, so a
// result may carry frames echoed for other requests; it must always carry its
// own echo, and every frame it carries must be one of the intact echoes.
func TestInvokeConcurrentSharedLink(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}
	sender.onSend = func(seqNo int, body, account string) {
		go d.Dispatch(protocol.Frame{SeqNo: seqNo, Content: body, ArrivedAt: time.Now()})
	}

	b := New(sender, d, "a123456", time.Second)

	const callers = 64
	commands := make([]string, callers)
	echoes := make(map[string]bool, callers)
	for i := 0; i < callers; i++ {
		name := fmt.Sprintf("查询玩家%02d", i)
		body, err := protocol.BuildCommand(name, nil)
		if err != nil {
			t.Fatal(err)
		}
		commands[i] = body
		echoes[body] = true
	}

	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = b.Invoke(context.Background(), 2, fmt.Sprintf("查询玩家%02d", i), nil)
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("invoke %d: %v", i, errs[i])
		}
		if results[i].Status != StatusSuccess {
			t.Errorf("invoke %d status = %q", i, results[i].Status)
			continue
		}
		own := false
		for _, f := range results[i].Frames {
			if !echoes[f.Content] {
				t.Errorf("invoke %d received torn frame %q", i, f.Content)
			}
			if f.Content == commands[i] {
				own = true
			}
		}
		if !own {
			t.Errorf("invoke %d never received its own echo", i)
		}
	}

	sender.mu.Lock()
	sent := len(sender.sent)
	sender.mu.Unlock()
	if sent != callers {
		t.Errorf("sent %d commands, want %d", sent, callers)
	}
	if d.OpenCollectors() != 0 {
		t.Errorf("%d collectors leaked", d.OpenCollectors())
	}
}

func TestInvokeTimeoutIsSoftNoResponse(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}

	b := New(sender, d, "a123456", 50*time.Millisecond)
	res, err := b.Invoke(context.Background(), 6, "发送广播", map[string]interface{}{"数据": "hi"})
	if err != nil {
		t.Fatalf("silent server must not be an error, got %v", err)
	}
	if res.Status != StatusNoResponse {
		t.Errorf("status = %q, want %q", res.Status, StatusNoResponse)
	}
	if res.Frames == nil || len(res.Frames) != 0 {
		t.Errorf("frames = %#v, want empty non-nil slice", res.Frames)
	}
	if d.OpenCollectors() != 0 {
		t.Error("collector leaked after timeout")
	}
}

func TestInvokeNotConnected(t *testing.T) {
	d := dispatch.NewDispatcher()
	b := New(&stubSender{connected: false}, d, "a123456", time.Second)

	if _, err := b.Invoke(context.Background(), 2, "查询信息", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestInvokeSendFailureCleansUp(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true, sendErr: errors.New("broken pipe")}

	b := New(sender, d, "a123456", time.Second)
	if _, err := b.Invoke(context.Background(), 2, "查询信息", nil); err == nil {
		t.Fatal("expected send error")
	}
	if d.OpenCollectors() != 0 {
		t.Error("collector leaked after send failure")
	}
}

func TestInvokeContextCancellation(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	b := New(sender, d, "a123456", 5*time.Second)
	if _, err := b.Invoke(ctx, 2, "查询信息", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if d.OpenCollectors() != 0 {
		t.Error("collector leaked after cancellation")
	}
}

func TestLoginAccepted(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}
	sender.onSend = func(seqNo int, body, account string) {
		if seqNo != protocol.SeqLogin {
			t.Errorf("login sent with seq %d", seqNo)
		}
		go d.Dispatch(protocol.Frame{SeqNo: protocol.SeqLoginOK, Content: "#Y/登录成功", ArrivedAt: time.Now()})
	}

	b := New(sender, d, "a123456", time.Second)
	if err := b.Login(context.Background(), "123456", time.Second); err != nil {
		t.Fatal(err)
	}

	sent := sender.lastSent(t)
	if want := protocol.BuildLogin("a123456", "123456"); sent.body != want {
		t.Errorf("login body %q, want %q", sent.body, want)
	}
}

func TestLoginRejected(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}
	sender.onSend = func(seqNo int, body, account string) {
		go d.Dispatch(protocol.Frame{SeqNo: protocol.SeqLoginFailed, Content: "密码错误", ArrivedAt: time.Now()})
	}

	b := New(sender, d, "a123456", time.Second)
	err := b.Login(context.Background(), "wrong", time.Second)
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
	if !strings.Contains(err.Error(), "密码错误") {
		t.Errorf("error %q should carry the server reason", err)
	}
}

func TestLoginTimeout(t *testing.T) {
	d := dispatch.NewDispatcher()
	sender := &stubSender{connected: true}

	b := New(sender, d, "a123456", time.Second)
	if err := b.Login(context.Background(), "123456", 50*time.Millisecond); !errors.Is(err, ErrLoginTimeout) {
		t.Errorf("err = %v, want ErrLoginTimeout", err)
	}
}
