package speech

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/zhouzirui/command-agent/backend/internal/model/speech"
)

func TestSpeakReportsSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(&speech.SpeechConfig{}, nil)
	result := <-svc.Speak(context.Background(), "hello there")

	if result.Status != speech.StatusSuccess {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.Message != "Spoke: hello there" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestSpeakEmptyTextFails(t *testing.T) {
	svc := NewService(nil, nil)
	result := <-svc.Speak(context.Background(), "   ")
	if result.Status != speech.StatusFailed {
		t.Fatalf("expected failure, got %s", result.Status)
	}
}

func TestSpeakHonoursCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(&speech.SpeechConfig{SpeakDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	results := svc.Speak(ctx, "never finishes")
	cancel()

	result := <-results
	if result.Status != speech.StatusFailed {
		t.Fatalf("expected failure after cancel, got %s", result.Status)
	}
	if _, open := <-results; open {
		t.Fatal("result channel must be closed after one result")
	}
}

func TestSimulatedCommandsDrawFromPool(t *testing.T) {
	source := NewSimulatedCommands(nil, rand.NewPCG(1, 2))
	for i := 0; i < 20; i++ {
		text, err := source.Next(context.Background())
		if err != nil {
			t.Fatalf("Next err: %v", err)
		}
		if !slices.Contains(DefaultCommands, text) {
			t.Fatalf("unexpected command %q", text)
		}
	}
}

type collector struct {
	mu    sync.Mutex
	texts []string
	errs  []error
}

func (c *collector) onUtterance(text string) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collector) count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts), len(c.errs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestVoiceSimulatorTriggerAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim := NewVoiceSimulator(NewSimulatedCommands([]string{"What time is it?"}, nil), 0, nil)
	got := &collector{}

	if !sim.Start(got.onUtterance, got.onError) {
		t.Fatal("expected first Start to succeed")
	}
	if sim.Start(got.onUtterance, got.onError) {
		t.Fatal("second Start must be rejected while listening")
	}

	if !sim.Trigger() {
		t.Fatal("Trigger should succeed while listening")
	}
	waitFor(t, func() bool { n, _ := got.count(); return n == 1 })

	sim.Stop()
	sim.Stop()

	if sim.Listening() {
		t.Fatal("simulator still listening after Stop")
	}
	if sim.Trigger() {
		t.Fatal("Trigger must fail after Stop")
	}
	if got.texts[0] != "What time is it?" {
		t.Fatalf("unexpected utterance %q", got.texts[0])
	}
}

func TestVoiceSimulatorNoEmissionsAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim := NewVoiceSimulator(nil, 5*time.Millisecond, nil)
	got := &collector{}
	sim.Start(got.onUtterance, got.onError)

	waitFor(t, func() bool { n, _ := got.count(); return n >= 3 })
	sim.Stop()

	stopped, _ := got.count()
	time.Sleep(30 * time.Millisecond)
	if after, _ := got.count(); after != stopped {
		t.Fatalf("emissions continued after Stop: %d -> %d", stopped, after)
	}
}

func TestVoiceSimulatorRestart(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim := NewVoiceSimulator(nil, 0, nil)
	got := &collector{}

	sim.Start(got.onUtterance, got.onError)
	sim.Stop()
	if !sim.Start(got.onUtterance, got.onError) {
		t.Fatal("expected Start after Stop to succeed")
	}
	sim.Trigger()
	waitFor(t, func() bool { n, _ := got.count(); return n == 1 })
	sim.Stop()
}

type flakySource struct {
	calls atomic.Int32
}

func (f *flakySource) Next(context.Context) (string, error) {
	if f.calls.Add(1) == 1 {
		return "", errors.New("microphone unavailable")
	}
	return "Tell me a joke", nil
}

func TestVoiceSimulatorErrorsKeepListening(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim := NewVoiceSimulator(&flakySource{}, 5*time.Millisecond, nil)
	got := &collector{}
	sim.Start(got.onUtterance, got.onError)
	defer sim.Stop()

	waitFor(t, func() bool {
		texts, errs := got.count()
		return texts >= 1 && errs == 1
	})
}
