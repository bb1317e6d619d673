package trigger_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/murmur/internal/actions/trigger"
	"github.com/MrWong99/murmur/internal/dispatch"
)

// recordingHandler returns a handler that appends every call to *calls.
func recordingHandler(calls *[]string, res dispatch.Result) trigger.Handler {
	return func(_ context.Context, text string) (dispatch.Result, error) {
		*calls = append(*calls, text)
		return res, nil
	}
}

func TestTable_ExactMatch(t *testing.T) {
	t.Parallel()

	var calls []string
	tbl := trigger.New("tbl")
	tbl.Add("Go To Sleep", recordingHandler(&calls, dispatch.Processed()))

	tests := []struct {
		text string
		want dispatch.ProcessResult
	}{
		{"go to sleep", dispatch.TextProcessed},
		{"  GO   to SLEEP ", dispatch.TextProcessed},
		{"go to bed", dispatch.TextNotProcessed},
		{"", dispatch.TextNotProcessed},
	}
	for _, tt := range tests {
		res, err := tbl.Act(context.Background(), tt.text)
		if err != nil {
			t.Fatalf("Act(%q): %v", tt.text, err)
		}
		if res.Process != tt.want {
			t.Errorf("Act(%q) = %v, want %v", tt.text, res.Process, tt.want)
		}
	}
	if want := []string{"go to sleep", "go to sleep"}; !slices.Equal(calls, want) {
		t.Errorf("handler calls = %q, want %q", calls, want)
	}
}

func TestTable_AddGetDelete(t *testing.T) {
	t.Parallel()

	var calls []string
	tbl := trigger.New("tbl")
	tbl.Add("wake up", recordingHandler(&calls, dispatch.Processed()))
	tbl.Add("stop", recordingHandler(&calls, dispatch.Processed()))
	tbl.Add("WAKE UP", recordingHandler(&calls, dispatch.ProcessFuture()))

	if got, want := tbl.Triggers(), []string{"wake up", "stop"}; !slices.Equal(got, want) {
		t.Errorf("Triggers() = %q, want %q", got, want)
	}
	if _, ok := tbl.Get("Wake Up"); !ok {
		t.Error("Get(Wake Up) not found")
	}
	res, _ := tbl.Act(context.Background(), "wake up")
	if res.Process != dispatch.ProcessFutureText {
		t.Errorf("replaced handler not used: %v", res.Process)
	}

	if !tbl.Delete("STOP") {
		t.Error("Delete(STOP) = false, want true")
	}
	if tbl.Delete("stop") {
		t.Error("second Delete(stop) = true, want false")
	}
	if _, ok := tbl.Get("stop"); ok {
		t.Error("stop still present after Delete")
	}
	if got := tbl.Triggers(); !slices.Equal(got, []string{"wake up"}) {
		t.Errorf("Triggers() after delete = %q", got)
	}
}

func TestTable_CustomTransform(t *testing.T) {
	t.Parallel()

	var calls []string
	tbl := trigger.New("tbl", trigger.WithTransform(trigger.Identity))
	tbl.Add("Stop", recordingHandler(&calls, dispatch.Processed()))

	if res, _ := tbl.Act(context.Background(), "stop"); res.Process != dispatch.TextNotProcessed {
		t.Errorf("identity transform matched a different case: %v", res.Process)
	}
	if res, _ := tbl.Act(context.Background(), "Stop"); res.Process != dispatch.TextProcessed {
		t.Errorf("identity transform missed exact text: %v", res.Process)
	}
}

func TestTable_RecognizedWords(t *testing.T) {
	t.Parallel()

	tbl := trigger.New("tbl")
	noop := func(context.Context, string) (dispatch.Result, error) { return dispatch.Processed(), nil }
	tbl.Add("wake up", noop)
	tbl.Add("go to sleep", noop)
	tbl.Add("wake-up", noop)
	tbl.Add("stop", noop)

	want := []string{"go", "sleep", "stop", "to", "up", "wake", "wake-up"}
	if got := tbl.RecognizedWords(); !slices.Equal(got, want) {
		t.Errorf("RecognizedWords() = %q, want %q", got, want)
	}
}

func TestTable_Disabled(t *testing.T) {
	t.Parallel()

	var calls []string
	tbl := trigger.New("tbl")
	tbl.Add("stop", recordingHandler(&calls, dispatch.Processed()))
	tbl.SetEnabled(false)

	res, err := tbl.Act(context.Background(), "stop")
	if err != nil || res.Process != dispatch.TextNotProcessed {
		t.Errorf("disabled Act = (%v, %v), want TEXT_NOT_PROCESSED", res.Process, err)
	}
	if len(calls) != 0 {
		t.Errorf("disabled table ran handler: %q", calls)
	}
}

func TestTable_FuzzyMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		threshold float64
		text      string
		wantCall  string
	}{
		{"phonetic word", 0.85, "go to slip", "go to sleep"},
		{"doubled letter", 0.85, "stopp", "stop"},
		{"different word", 0.85, "go to school", ""},
		{"word count differs", 0.85, "go sleep", ""},
		{"disabled", 0, "go to slip", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls []string
			tbl := trigger.New("tbl", trigger.WithFuzzyMatch(tt.threshold))
			tbl.Add("go to sleep", recordingHandler(&calls, dispatch.Processed()))
			tbl.Add("stop", recordingHandler(&calls, dispatch.Processed()))

			res, err := tbl.Act(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Act: %v", err)
			}
			if tt.wantCall == "" {
				if res.Process != dispatch.TextNotProcessed || len(calls) != 0 {
					t.Errorf("Act(%q) = %v with calls %q, want no match", tt.text, res.Process, calls)
				}
				return
			}
			if len(calls) != 1 || calls[0] != tt.wantCall {
				t.Errorf("calls = %q, want [%q]", calls, tt.wantCall)
			}
		})
	}
}

func TestTable_RecordingData(t *testing.T) {
	t.Parallel()

	tbl := trigger.New("tbl")
	tbl.Add("stop", func(context.Context, string) (dispatch.Result, error) { return dispatch.Processed(), nil })
	tbl.Add("custom", func(context.Context, string) (dispatch.Result, error) {
		return dispatch.Processed().WithRecordingData("mine"), nil
	})

	res, _ := tbl.Act(context.Background(), "stop")
	if res.RecordingData != nil {
		t.Errorf("recording data without request: %v", res.RecordingData)
	}

	ctx := dispatch.WithRecording(context.Background())
	res, _ = tbl.Act(ctx, "STOP")
	data, ok := res.RecordingData.(map[string]string)
	if !ok || data["trigger"] != "stop" {
		t.Errorf("RecordingData = %#v, want trigger=stop", res.RecordingData)
	}
	if res, _ := tbl.Act(ctx, "custom"); res.RecordingData != "mine" {
		t.Errorf("handler recording data overwritten: %v", res.RecordingData)
	}
}

func TestTable_HandlerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tbl := trigger.New("tbl")
	tbl.Add("stop", func(context.Context, string) (dispatch.Result, error) { return dispatch.NotProcessed(), boom })

	if _, err := tbl.Act(context.Background(), "stop"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping %v", err, boom)
	}
}
