package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/listener"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// Utterance is one transcribed piece of speech delivered by a [TextStream].
type Utterance struct {
	ID          string
	Sample      audio.Sample
	Transcripts stt.Transcripts
	Received    time.Time
}

// TextStream pulls utterances from the dispatcher's listener, transcribes
// them with the current transcriber and yields their best text in capture
// order.
//
//	texts := d.Texts(ctx)
//	for texts.Next() {
//		fmt.Println(texts.Text())
//	}
//	if err := texts.Err(); err != nil { ... }
//
// A TextStream is not safe for concurrent use.
type TextStream struct {
	d   *Dispatcher
	ctx context.Context

	utt  Utterance
	text string
	err  error
	done bool
}

// Texts returns a stream over the utterances of the current listener. The
// stream follows listener and transcriber swaps.
func (d *Dispatcher) Texts(ctx context.Context) *TextStream {
	return &TextStream{d: d, ctx: ctx}
}

// Next blocks until the next non-empty text is available and reports
// whether there is one. It returns false once the listener has stopped and
// its queue is drained, when ctx ends, or on a listener failure.
//
// Utterances the engine could not recognise are skipped, as are utterances
// whose transcription failed; both are logged.
func (s *TextStream) Next() bool {
	if s.done {
		return false
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return s.finish(err)
		}
		l := s.d.Listener()
		if l == nil {
			return s.finish(nil)
		}
		sample, err := l.Get(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return s.finish(s.ctx.Err())
			}
			if s.d.Listener() != l {
				continue
			}
			if errors.Is(err, listener.ErrClosed) {
				s.d.uncount()
				return s.finish(nil)
			}
			return s.finish(err)
		}
		s.d.metrics.QueueDepth.Record(s.ctx, int64(l.Len()))

		utt := Utterance{ID: uuid.NewString(), Sample: sample, Received: time.Now()}
		ts, ok := s.transcribe(observe.WithUtterance(s.ctx, utt.ID), sample)
		if !ok {
			continue
		}
		utt.Transcripts = ts
		s.utt = utt
		s.text = ts[0].Text
		return true
	}
}

func (s *TextStream) transcribe(ctx context.Context, sample audio.Sample) (stt.Transcripts, bool) {
	log := observe.Logger(ctx)
	t := s.d.Transcriber()
	if t == nil {
		log.Warn("dispatch: no transcriber set, dropping utterance")
		return nil, false
	}
	s.d.metrics.UtteranceDuration.Record(ctx, sample.Seconds())

	ctx, span := observe.StartSpan(ctx, "transcribe")
	defer span.End()
	start := time.Now()
	ts, err := t.Transcribe(ctx, sample, s.d.sttOpts)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, stt.ErrNoTranscription):
		s.d.metrics.RecordSTT(ctx, elapsed, "empty")
		log.Info("dispatch: no transcription for utterance", "duration", sample.Duration())
		return nil, false
	case err != nil:
		if s.ctx.Err() == nil {
			span.RecordError(err)
			s.d.metrics.RecordSTT(ctx, elapsed, "error")
			s.d.metrics.RecordProviderError(ctx, "stt", "transcribe")
			log.Error("dispatch: transcription failed, skipping utterance", "err", err)
		}
		return nil, false
	}
	s.d.metrics.RecordSTT(ctx, elapsed, "ok")

	ts = stt.NewTranscripts(ts...)
	if len(ts) == 0 || strings.TrimSpace(ts[0].Text) == "" {
		log.Debug("dispatch: empty transcription skipped")
		return nil, false
	}
	log.Info("dispatch: utterance transcribed", "text", ts[0].Text, "stt_latency", elapsed)
	return ts, true
}

func (s *TextStream) finish(err error) bool {
	s.done = true
	s.err = err
	s.text = ""
	s.utt = Utterance{}
	return false
}

// Text returns the best transcript of the current utterance.
func (s *TextStream) Text() string { return s.text }

// Utterance returns the current utterance with all of its transcripts.
func (s *TextStream) Utterance() Utterance { return s.utt }

// Err returns the error that ended the stream, or nil when the listener was
// exhausted normally.
func (s *TextStream) Err() error { return s.err }
