package scrubber

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/raaihank/relay-scrubber/internal/datascrubbing"
	"github.com/raaihank/relay-scrubber/internal/logger"
	"github.com/raaihank/relay-scrubber/internal/metrics"
	"github.com/raaihank/relay-scrubber/internal/pii"
	"github.com/raaihank/relay-scrubber/internal/project"
)

func defaultProject() *project.Config {
	settings := datascrubbing.NewDefault()
	return &project.Config{DataScrubbingSettings: &settings}
}

func TestScrubEvent(t *testing.T) {
	tests := []struct {
		name  string
		event string
		want  string
	}{
		{
			name:  "http body",
			event: `{"request":{"data":"{\"email\":\"zzzz@gmail.com\",\"password\":\"zzzzz\"}"}}`,
			want: `{"request":{"data":{"email":"[email]","password":null},"inferred_content_type":"application/json"},` +
				`"_meta":{"request":{"data":{"email":{"":{"rem":[["@email","s",0,7]],"len":14}},` +
				`"password":{"":{"rem":[["@password","x"]]}}}}}}`,
		},
		{
			name:  "query string",
			event: `{"request":{"query_string":"foo=bar&password=hello&the_secret=hello&a_password_here=hello&api_key=secret_key"}}`,
			want: `{"request":{"query_string":[["foo","bar"],["password",null],["the_secret",null],["a_password_here",null],["api_key",null]]},` +
				`"_meta":{"request":{"query_string":{` +
				`"1":{"1":{"":{"rem":[["@password","x"]]}}},` +
				`"2":{"1":{"":{"rem":[["@password","x"]]}}},` +
				`"3":{"1":{"":{"rem":[["@password","x"]]}}},` +
				`"4":{"1":{"":{"rem":[["@password","x"]]}}}}}}}`,
		},
		{
			name:  "protected fields",
			event: `{"event_id":"a@b.com","level":"error","extra":{"ip":"127.0.0.1"}}`,
			want:  `{"event_id":"a@b.com","level":"error","extra":{"ip":"[ip]"},"_meta":{"extra":{"ip":{"":{"rem":[["@ip","s",0,4]],"len":9}}}}}`,
		},
	}

	svc := New(DefaultOptions(), logger.Nop(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := svc.ScrubEvent(context.Background(), defaultProject(), []byte(tt.event))
			if err != nil {
				t.Fatalf("ScrubEvent failed: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("unexpected output:\n got  %s\n want %s", out, tt.want)
			}
		})
	}
}

func TestScrubEventStats(t *testing.T) {
	svc := New(DefaultOptions(), nil, nil)
	_, stats, err := svc.ScrubEvent(context.Background(), defaultProject(),
		[]byte(`{"extra":{"a":"x@y.com","b":"x@y.com","password":"p"},"level":7}`))
	if err != nil {
		t.Fatalf("ScrubEvent failed: %v", err)
	}
	if stats.Remarks["@email"] != 2 || stats.Remarks["@password"] != 1 || stats.RemarkCount() != 3 {
		t.Errorf("unexpected remarks %v", stats.Remarks)
	}
	if stats.Errors != 1 {
		t.Errorf("expected the invalid level to be counted, got %d errors", stats.Errors)
	}
}

func TestScrubEventWithoutNormalization(t *testing.T) {
	opts := DefaultOptions()
	opts.Normalize = false
	svc := New(opts, nil, nil)

	out, _, err := svc.ScrubEvent(context.Background(), defaultProject(), []byte(`{"message":"hi a@b.com","level":7}`))
	if err != nil {
		t.Fatalf("ScrubEvent failed: %v", err)
	}
	want := `{"message":"hi [email]","level":7,"_meta":{"message":{"":{"rem":[["@email","s",3,10]],"len":10}}}}`
	if string(out) != want {
		t.Errorf("unexpected output:\n got  %s\n want %s", out, want)
	}
}

func TestScrubEventErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEventBytes = 16
	svc := New(opts, nil, nil)

	if _, _, err := svc.ScrubEvent(context.Background(), defaultProject(), []byte(`{"extra":{"long":"value"}}`)); !errors.Is(err, ErrEventTooLarge) {
		t.Errorf("expected ErrEventTooLarge, got %v", err)
	}
	if _, _, err := svc.ScrubEvent(context.Background(), defaultProject(), []byte(`{"a":`)); err == nil {
		t.Error("expected error for malformed json")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := svc.ScrubEvent(ctx, defaultProject(), []byte(`{}`)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScrubEventWithoutConfig(t *testing.T) {
	svc := New(DefaultOptions(), nil, nil)
	out, stats, err := svc.ScrubEvent(context.Background(), nil, []byte(`{"extra":{"email":"a@b.com"}}`))
	if err != nil {
		t.Fatalf("ScrubEvent failed: %v", err)
	}
	if string(out) != `{"extra":{"email":"a@b.com"}}` || stats.RemarkCount() != 0 {
		t.Errorf("event should pass through unchanged, got %s", out)
	}
}

func TestProjectPiiConfigFirst(t *testing.T) {
	cfg, err := pii.ParseConfig([]byte(`{"rules":{"hide":{"type":"pattern","pattern":"secret",` +
		`"redaction":{"method":"replace","text":"[hidden]"}}},"applications":{"extra.note":["hide"]}}`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	proj := defaultProject()
	proj.PiiConfig = cfg

	svc := New(DefaultOptions(), nil, nil)
	out, _, err := svc.ScrubEvent(context.Background(), proj, []byte(`{"extra":{"note":"secret a@b.com"}}`))
	if err != nil {
		t.Fatalf("ScrubEvent failed: %v", err)
	}
	want := `{"extra":{"note":"[hidden] [email]"},"_meta":{"extra":{"note":{"":{"rem":[["hide","s",0,8],["@email","s",9,16]],"len":14}}}}}`
	if string(out) != want {
		t.Errorf("unexpected output:\n got  %s\n want %s", out, want)
	}
}

func TestScrubBatch(t *testing.T) {
	opts := DefaultOptions()
	opts.Workers = 2
	svc := New(opts, nil, nil)

	events := [][]byte{
		[]byte(`{"extra":{"e":"a@b.com"}}`),
		[]byte(`{"broken":`),
		[]byte(`{"extra":{"password":"x"}}`),
		[]byte(`{}`),
	}
	results, err := svc.ScrubBatch(context.Background(), defaultProject(), events)
	if err != nil {
		t.Fatalf("ScrubBatch failed: %v", err)
	}
	if len(results) != len(events) {
		t.Fatalf("expected %d results, got %d", len(events), len(results))
	}
	if results[1].Err == nil {
		t.Error("malformed event should fail")
	}
	for _, i := range []int{0, 2, 3} {
		if results[i].Err != nil {
			t.Errorf("event %d failed: %v", i, results[i].Err)
		}
	}
	if !strings.Contains(string(results[0].Payload), `"[email]"`) {
		t.Errorf("unexpected payload %s", results[0].Payload)
	}
	if results[2].Stats.Remarks["@password"] != 1 {
		t.Errorf("unexpected stats %+v", results[2].Stats)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err = svc.ScrubBatch(ctx, defaultProject(), events)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("event %d should not be processed after cancellation", i)
		}
	}
}

func TestServiceMetrics(t *testing.T) {
	m := metrics.New("t")
	svc := New(DefaultOptions(), nil, m)

	cfg, err := pii.ParseConfig([]byte(`{"applications":{"$string":["missing","@email"]}}`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	proj := &project.Config{PiiConfig: cfg}

	for i := 0; i < 2; i++ {
		if _, _, err := svc.ScrubEvent(context.Background(), proj, []byte(`{"extra":{"e":"a@b.com"}}`)); err != nil {
			t.Fatalf("ScrubEvent failed: %v", err)
		}
	}
	if _, _, err := svc.ScrubEvent(context.Background(), proj, []byte(`{"extra":{"e":"nothing"}}`)); err != nil {
		t.Fatalf("ScrubEvent failed: %v", err)
	}

	expected := `
# HELP t_config_compile_errors_total PII configs that failed to compile cleanly.
# TYPE t_config_compile_errors_total counter
t_config_compile_errors_total 1
# HELP t_config_cache_hits_total Compiled PII config cache hits.
# TYPE t_config_cache_hits_total counter
t_config_cache_hits_total 2
# HELP t_events_total Events processed, by outcome.
# TYPE t_events_total counter
t_events_total{outcome="scrubbed"} 2
t_events_total{outcome="skipped"} 1
# HELP t_remarks_total Remarks recorded on scrubbed values, by rule and remark type.
# TYPE t_remarks_total counter
t_remarks_total{rule="@email",type="s"} 2
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"t_config_compile_errors_total", "t_config_cache_hits_total", "t_events_total", "t_remarks_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}
