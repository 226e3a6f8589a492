package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tixwatch/internal/config"
	"tixwatch/internal/eventbus"
	"tixwatch/internal/extract"
	"tixwatch/internal/fetch"
	"tixwatch/internal/notifier"
	logx "tixwatch/pkg/logx"
)

const (
	apiURL   = "https://apis.ticketplus.com.tw/config/api/v1/get?ticketAreaId=a"
	availAPI = `{"result":{"ticketArea":[{"status":"Available","ticketAreaName":"A","price":"1000","count":5}]}}`
	soldAPI  = `{"result":{"ticketArea":[{"status":"完售","ticketAreaName":"A","price":"1000","count":0}]}}`
)

// fakeFetcher returns queued responses per URL; the last one repeats.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]fakeResp
	calls []string
}

type fakeResp struct {
	body  string
	ctype string
	err   error
	panic bool
}

func newFakeFetcher() *fakeFetcher { return &fakeFetcher{pages: map[string][]fakeResp{}} }

func (f *fakeFetcher) queue(url string, rs ...fakeResp) {
	f.mu.Lock()
	f.pages[url] = append(f.pages[url], rs...)
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (fetch.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	rs := f.pages[url]
	if len(rs) == 0 {
		f.mu.Unlock()
		return fetch.Page{}, &fetch.Error{Kind: fetch.KindTransport, URL: url, Err: errors.New("no response queued")}
	}
	r := rs[0]
	if len(rs) > 1 {
		f.pages[url] = rs[1:]
	}
	f.mu.Unlock()

	if r.panic {
		panic("boom")
	}
	if r.err != nil {
		return fetch.Page{}, r.err
	}
	ct := r.ctype
	if ct == "" {
		ct = "application/json"
	}
	return fetch.Page{URL: url, Status: 200, ContentType: ct, Body: []byte(r.body)}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, msg notifier.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *fakeNotifier) alerts() []notifier.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifier.Notification
	for _, s := range n.sent {
		if s.Kind == notifier.KindAlert {
			out = append(out, s)
		}
	}
	return out
}

func newTestService(t *testing.T, f fetch.Fetcher, n Notifier, targets ...Target) *Service {
	t.Helper()
	s, err := New(Options{
		Fetcher:   f,
		Extractor: extract.Default(logx.Nop()),
		Notifier:  n,
		Log:       logx.Nop(),
		Targets:   targets,
		Delay:     0,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return s
}

func apiTarget(url string) Target {
	return TargetFromConfig(config.Target{URL: url})
}

func TestEdgeTriggeredAlerts(t *testing.T) {
	f := newFakeFetcher()
	// rounds: sold, avail, avail, sold, avail
	f.queue(apiURL,
		fakeResp{body: soldAPI},
		fakeResp{body: availAPI},
		fakeResp{body: availAPI},
		fakeResp{body: soldAPI},
		fakeResp{body: availAPI},
	)
	n := &fakeNotifier{}
	s := newTestService(t, f, n, apiTarget(apiURL))

	wantAlerts := []int{0, 1, 1, 1, 2}
	for i, want := range wantAlerts {
		rep := s.RunOnce(context.Background())
		if got := len(n.alerts()); got != want {
			t.Fatalf("round %d: alerts = %d, want %d", i, got, want)
		}
		if len(rep.Targets) != 1 {
			t.Fatalf("round %d: targets = %d", i, len(rep.Targets))
		}
	}
	if !s.Snapshot()[apiURL] {
		t.Fatal("tracker should end available")
	}
}

func TestFirstCheckAvailableIsAnEdge(t *testing.T) {
	f := newFakeFetcher()
	f.queue(apiURL, fakeResp{body: availAPI})
	n := &fakeNotifier{}
	s := newTestService(t, f, n, apiTarget(apiURL))

	rep := s.RunOnce(context.Background())
	if !rep.Targets[0].Edge || !rep.Targets[0].Notified {
		t.Fatalf("report = %+v, want edge + notified", rep.Targets[0])
	}
	a := n.alerts()
	if len(a) != 1 || a[0].URL != apiURL || a[0].Seats != 1 {
		t.Fatalf("alerts = %+v", a)
	}
}

func TestFetchTimeoutMarksUnavailable(t *testing.T) {
	f := newFakeFetcher()
	timeout := &fetch.Error{Kind: fetch.KindTimeout, URL: apiURL, Err: context.DeadlineExceeded}
	f.queue(apiURL, fakeResp{body: availAPI}, fakeResp{err: timeout}, fakeResp{body: availAPI})
	n := &fakeNotifier{}
	s := newTestService(t, f, n, apiTarget(apiURL))

	s.RunOnce(context.Background())
	rep := s.RunOnce(context.Background())
	if rep.Targets[0].Available || !fetch.IsKind(rep.Targets[0].Err, fetch.KindTimeout) {
		t.Fatalf("report = %+v, want unavailable timeout", rep.Targets[0])
	}
	if s.Snapshot()[apiURL] {
		t.Fatal("tracker should be unavailable after a timeout")
	}
	// Recovery after the failed round is a fresh edge.
	s.RunOnce(context.Background())
	if got := len(n.alerts()); got != 2 {
		t.Fatalf("alerts = %d, want 2", got)
	}
}

func TestNoMatchMarksUnavailable(t *testing.T) {
	f := newFakeFetcher()
	f.queue(apiURL, fakeResp{body: availAPI}, fakeResp{body: "<html></html>", ctype: "text/plain"})
	s := newTestService(t, f, &fakeNotifier{}, apiTarget(apiURL))

	s.RunOnce(context.Background())
	rep := s.RunOnce(context.Background())
	if rep.Targets[0].Matched || rep.Targets[0].Err != nil {
		t.Fatalf("report = %+v, want unmatched without error", rep.Targets[0])
	}
	if s.Snapshot()[apiURL] {
		t.Fatal("tracker should be unavailable")
	}
}

func TestNotifyErrorKeepsTrackerState(t *testing.T) {
	f := newFakeFetcher()
	f.queue(apiURL, fakeResp{body: availAPI})
	n := &fakeNotifier{err: errors.New("discord down")}
	s := newTestService(t, f, n, apiTarget(apiURL))

	rep := s.RunOnce(context.Background())
	if rep.Targets[0].Notified {
		t.Fatal("Notified should be false on send error")
	}
	if !s.Snapshot()[apiURL] {
		t.Fatal("tracker should record available despite the send error")
	}
	s.RunOnce(context.Background())
	if got := len(n.alerts()); got != 1 {
		t.Fatalf("alerts = %d, want 1 (no resend on available→available)", got)
	}
}

func TestPanicIsolatedToTarget(t *testing.T) {
	f := newFakeFetcher()
	other := "https://apis.ticketplus.com.tw/config/api/v1/get?ticketAreaId=b"
	f.queue(apiURL, fakeResp{panic: true})
	f.queue(other, fakeResp{body: availAPI})
	n := &fakeNotifier{}
	s := newTestService(t, f, n, apiTarget(apiURL), apiTarget(other))

	rep := s.RunOnce(context.Background())
	if len(rep.Targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(rep.Targets))
	}
	if rep.Targets[0].Err == nil || !strings.Contains(rep.Targets[0].Err.Error(), "panic") {
		t.Fatalf("first target err = %v, want panic", rep.Targets[0].Err)
	}
	if !rep.Targets[1].Available || len(n.alerts()) != 1 {
		t.Fatalf("second target = %+v, alerts = %d", rep.Targets[1], len(n.alerts()))
	}
}

func TestRoundOrderAndPacing(t *testing.T) {
	f := newFakeFetcher()
	urls := []string{
		"https://apis.ticketplus.com.tw/a",
		"https://apis.ticketplus.com.tw/b",
		"https://apis.ticketplus.com.tw/c",
	}
	var targets []Target
	for _, u := range urls {
		f.queue(u, fakeResp{body: soldAPI})
		targets = append(targets, apiTarget(u))
	}
	s := newTestService(t, f, nil, targets...)
	const delay = 40 * time.Millisecond
	s.SetDelay(delay)

	rep := s.RunOnce(context.Background())
	if rep.Took < 3*delay {
		t.Fatalf("round took %v, want >= %v", rep.Took, 3*delay)
	}
	for i, u := range urls {
		if f.calls[i] != u {
			t.Fatalf("call %d = %s, want %s", i, f.calls[i], u)
		}
	}
}

// stepCadence lets tests run rounds back to back without cron's one-second floor.
func stepCadence(d time.Duration) Cadence {
	return Cadence{Every: d, Spec: "test"}
}

func TestRunWaitsForReadyAndAnnounces(t *testing.T) {
	f := newFakeFetcher()
	f.queue(apiURL, fakeResp{body: soldAPI})
	n := &fakeNotifier{}
	ready := make(chan struct{})
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()

	s, err := New(Options{
		Fetcher:   f,
		Extractor: extract.Default(logx.Nop()),
		Notifier:  n,
		Bus:       bus,
		Log:       logx.Nop(),
		Ready:     ready,
		Targets:   []Target{apiTarget(apiURL)},
		Cadence:   stepCadence(10 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if c := f.callCount(); c != 0 {
		t.Fatalf("fetched %d times before ready", c)
	}
	close(ready)

	deadline := time.After(2 * time.Second)
	rounds := 0
	for rounds < 3 {
		select {
		case e := <-events:
			if e.Type == eventbus.RoundFinished {
				rounds++
			}
		case <-deadline:
			t.Fatalf("only %d rounds finished", rounds)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run error: %v", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 || n.sent[0].Kind != notifier.KindAnnouncement || n.sent[0].Message.Text != StartupAnnouncement {
		t.Fatalf("first send = %+v, want announcement", n.sent)
	}
}

func TestRoundsDoNotOverlap(t *testing.T) {
	f := newFakeFetcher()
	f.queue(apiURL, fakeResp{body: soldAPI})
	s, err := New(Options{
		Fetcher:   f,
		Extractor: extract.Default(logx.Nop()),
		Log:       logx.Nop(),
		Targets:   []Target{apiTarget(apiURL)},
		// Cadence shorter than the round: the next round starts right after the previous one.
		Cadence: stepCadence(time.Millisecond),
		Delay:   30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	// 200ms / 30ms per round allows at most 7 sequential rounds.
	if c := f.callCount(); c < 2 || c > 7 {
		t.Fatalf("fetch calls = %d, want 2..7", c)
	}
}

func TestSetTargetsKeepsTrackerEntries(t *testing.T) {
	f := newFakeFetcher()
	f.queue(apiURL, fakeResp{body: availAPI})
	s := newTestService(t, f, nil, apiTarget(apiURL))
	s.RunOnce(context.Background())

	s.SetTargets(nil)
	rep := s.RunOnce(context.Background())
	if len(rep.Targets) != 0 {
		t.Fatalf("targets = %d, want 0", len(rep.Targets))
	}
	if _, ok := s.Snapshot()[apiURL]; !ok {
		t.Fatal("tracker entry for removed target was dropped")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Extractor: extract.Default(logx.Nop())}); err == nil {
		t.Fatal("expected error without fetcher")
	}
	if _, err := New(Options{Fetcher: newFakeFetcher()}); err == nil {
		t.Fatal("expected error without extractor")
	}
}

func TestRenderTargetsUseRenderer(t *testing.T) {
	const renderURL = "https://apis.ticketplus.com.tw/config/api/v1/get?ticketAreaId=r"
	plain := apiTarget(apiURL)
	rendered := apiTarget(renderURL)
	rendered.Render = true

	tests := []struct {
		name         string
		withRenderer bool
		wantFetcher  []string
		wantRenderer []string
	}{
		{name: "renderer set", withRenderer: true, wantFetcher: []string{apiURL}, wantRenderer: []string{renderURL}},
		{name: "no renderer", wantFetcher: []string{apiURL, renderURL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			f.queue(apiURL, fakeResp{body: soldAPI})
			f.queue(renderURL, fakeResp{body: soldAPI})
			r := newFakeFetcher()
			r.queue(renderURL, fakeResp{body: soldAPI})

			opts := Options{
				Fetcher:   f,
				Extractor: extract.Default(logx.Nop()),
				Log:       logx.Nop(),
				Targets:   []Target{plain, rendered},
			}
			if tt.withRenderer {
				opts.Renderer = r
			}
			s, err := New(opts)
			if err != nil {
				t.Fatalf("New error: %v", err)
			}

			rep := s.RunOnce(context.Background())
			for _, tr := range rep.Targets {
				if tr.Err != nil || !tr.Matched {
					t.Fatalf("target %s: err %v matched %v", tr.URL, tr.Err, tr.Matched)
				}
			}
			if got := strings.Join(f.calls, ","); got != strings.Join(tt.wantFetcher, ",") {
				t.Fatalf("fetcher calls = %q, want %q", got, strings.Join(tt.wantFetcher, ","))
			}
			if got := strings.Join(r.calls, ","); got != strings.Join(tt.wantRenderer, ",") {
				t.Fatalf("renderer calls = %q, want %q", got, strings.Join(tt.wantRenderer, ","))
			}
		})
	}
}
