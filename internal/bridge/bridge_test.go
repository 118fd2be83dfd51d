package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/netatmo-bridge/internal/netatmo"
)

// testLogger satisfies Logger and discards everything.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// publishRecord is one retained publish seen by the fake broker.
type publishRecord struct {
	topic   string
	payload string
}

// recordingPub records every retained publish in order.
type recordingPub struct {
	mu        sync.Mutex
	published []publishRecord
}

func (p *recordingPub) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishRecord{topic: topic, payload: string(payload)})
	return nil
}

// last returns the most recent payload published to topic, or "" when the
// topic was never published.
func (p *recordingPub) last(topic string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.published) - 1; i >= 0; i-- {
		if p.published[i].topic == topic {
			return p.published[i].payload
		}
	}
	return ""
}

// count returns how many times topic was published with payload.
func (p *recordingPub) count(topic, payload string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, rec := range p.published {
		if rec.topic == topic && rec.payload == payload {
			n++
		}
	}
	return n
}

func (p *recordingPub) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// fakeSession scripts the vendor session for loop tests.
type fakeSession struct {
	mu sync.Mutex

	modules   []netatmo.Module
	fetchErrs []error // consumed one per FetchModules call, then nil
	fetchN    int

	keepaliveWait  time.Duration
	keepaliveErr   error
	keepaliveCalls []time.Duration

	authorizeErr  error
	requestLines  []string
	authenticated bool
}

func (f *fakeSession) AuthorizationURL() string { return "https://auth.example/consent" }

func (f *fakeSession) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *fakeSession) Authorize(_ context.Context, requestLine string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestLines = append(f.requestLines, requestLine)
	if f.authorizeErr != nil {
		return f.authorizeErr
	}
	f.authenticated = true
	return nil
}

func (f *fakeSession) FetchModules(context.Context) ([]netatmo.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.fetchN < len(f.fetchErrs) {
		err = f.fetchErrs[f.fetchN]
	}
	f.fetchN++
	if err != nil {
		return nil, err
	}
	return f.modules, nil
}

func (f *fakeSession) Keepalive(_ context.Context, min time.Duration) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepaliveCalls = append(f.keepaliveCalls, min)
	wait := f.keepaliveWait
	if wait == 0 {
		wait = min
	}
	return wait, f.keepaliveErr
}

func (f *fakeSession) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchN
}

func (f *fakeSession) keepaliveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keepaliveCalls)
}

func intPtr(v int) *int         { return &v }
func boolPtr(v bool) *bool      { return &v }
func f64Ptr(v float64) *float64 { return &v }

// stationModule and outdoorModule build the canonical two-module topology
// used across the loop and synchronizer tests.
func stationModule() netatmo.Module {
	return netatmo.Module{
		ID:              "70:ee:50:00:00:01",
		Type:            "NAMain",
		Name:            "Indoor",
		WifiStatus:      intPtr(55),
		LastStatusStore: 1700000000,
		Dashboard: &netatmo.Dashboard{
			Temperature: f64Ptr(21.5),
			CO2:         f64Ptr(600),
		},
	}
}

func outdoorModule() netatmo.Module {
	return netatmo.Module{
		ID:             "02:00:00:00:00:01",
		Type:           "NAModule1",
		Name:           "Garden",
		RFStatus:       intPtr(65),
		BatteryPercent: intPtr(80),
		Reachable:      boolPtr(true),
		LastSeen:       1700000100,
		Dashboard: &netatmo.Dashboard{
			Temperature: f64Ptr(12.5),
			Humidity:    f64Ptr(68),
		},
	}
}

func TestNewValidation(t *testing.T) {
	session := &fakeSession{}
	pub := &recordingPub{}

	valid := Options{
		Session:           session,
		Publisher:         pub,
		ListenAddr:        "127.0.0.1:0",
		Domain:            "homie",
		DeviceID:          "netatmo",
		DeviceName:        "Netatmo",
		PollInterval:      time.Minute,
		KeepaliveInterval: time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{"valid", func(*Options) {}, nil},
		{"missing session", func(o *Options) { o.Session = nil }, ErrNoSession},
		{"missing publisher", func(o *Options) { o.Publisher = nil }, ErrNoPublisher},
		{"empty domain", func(o *Options) { o.Domain = "" }, ErrInvalidIdentity},
		{"uppercase device id", func(o *Options) { o.DeviceID = "Netatmo" }, ErrInvalidIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)

			b, err := New(opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && b == nil {
				t.Fatal("New() returned nil bridge without error")
			}
		})
	}
}

func TestBridgeStopRetiresDevice(t *testing.T) {
	pub := &recordingPub{}
	b, err := New(Options{
		Session:           &fakeSession{modules: []netatmo.Module{stationModule()}},
		Publisher:         pub,
		ListenAddr:        "127.0.0.1:0",
		Domain:            "homie",
		DeviceID:          "netatmo",
		DeviceName:        "Netatmo",
		PollInterval:      time.Minute,
		KeepaliveInterval: time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// No device published yet: Stop is a no-op.
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() before any sync error = %v", err)
	}

	b.poller.cycle(context.Background())

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := pub.last("homie/netatmo/$state"); got != "disconnected" {
		t.Errorf("$state after Stop = %q, want %q", got, "disconnected")
	}
}
