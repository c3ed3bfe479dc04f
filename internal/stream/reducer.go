// Package stream folds a generative response stream into ordered story turns.
//
// A Reducer consumes fragments in delivery order and emits Append and Update
// events. Consecutive text deltas share one open text turn whose content is
// always reported cumulatively; inline media seals the open turn and becomes
// a turn of its own. The reducer never reorders, merges or drops media.
package stream

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"storyweaver/internal/logging"
	"storyweaver/internal/types"
)

// Media is an inline binary payload delivered by the backend.
type Media struct {
	MIMEType string
	Data     []byte
}

// Fragment is one incremental piece of a streamed response.
// Exactly one of Text or Media is meaningful; Media takes precedence.
type Fragment struct {
	Text  string
	Media *Media
}

// TextFragment is a convenience constructor for a text delta.
func TextFragment(s string) Fragment { return Fragment{Text: s} }

// MediaFragment is a convenience constructor for inline media.
func MediaFragment(mime string, data []byte) Fragment {
	return Fragment{Media: &Media{MIMEType: mime, Data: data}}
}

// EventKind distinguishes turn creation from content replacement.
type EventKind int

const (
	// EventAppend adds a new turn at the end of the conversation.
	EventAppend EventKind = iota
	// EventUpdate replaces the content of the open text turn with the cumulative text.
	EventUpdate
)

func (k EventKind) String() string {
	switch k {
	case EventAppend:
		return "append"
	case EventUpdate:
		return "update"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is emitted by the reducer for every turn change.
type Event struct {
	Kind EventKind
	Turn types.Turn
}

// ErrorTurnPrefix starts the content of the synthetic turn appended on provider failure.
const ErrorTurnPrefix = "**Generation error:** "

// Reducer is the pure fragment-to-event state machine.
// The zero value is not usable; call NewReducer.
type Reducer struct {
	newID  func() string
	open   int // index of the open text turn, -1 when sealed
	text   strings.Builder
	turns  []types.Turn
	closed bool
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithIDs overrides turn id generation.
func WithIDs(gen func() string) Option {
	return func(r *Reducer) { r.newID = gen }
}

// NewReducer returns a reducer with no open turn.
func NewReducer(opts ...Option) *Reducer {
	r := &Reducer{newID: types.NewID, open: -1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed folds one fragment and returns the events it produced, in order.
func (r *Reducer) Feed(f Fragment) []Event {
	if r.closed {
		return nil
	}
	if f.Media != nil {
		return r.feedMedia(*f.Media)
	}
	if f.Text == "" {
		return nil
	}

	var events []Event
	r.text.WriteString(f.Text)
	if r.open < 0 {
		turn := types.Turn{ID: r.newID(), Kind: types.TurnText}
		r.turns = append(r.turns, turn)
		r.open = len(r.turns) - 1
		events = append(events, Event{Kind: EventAppend, Turn: turn})
	}
	r.turns[r.open].Content = r.text.String()
	events = append(events, Event{Kind: EventUpdate, Turn: r.turns[r.open]})
	return events
}

func (r *Reducer) feedMedia(m Media) []Event {
	r.seal()
	turn := types.Turn{
		ID:      r.newID(),
		Kind:    MediaKind(m.MIMEType),
		Content: types.DataURL(m.MIMEType, m.Data),
	}
	r.turns = append(r.turns, turn)
	return []Event{{Kind: EventAppend, Turn: turn}}
}

// Fail seals any open turn and appends one synthetic error turn.
// Turns produced before the failure are kept.
func (r *Reducer) Fail(err error) []Event {
	if r.closed {
		return nil
	}
	r.seal()
	r.closed = true
	turn := types.Turn{
		ID:      r.newID(),
		Kind:    types.TurnText,
		Content: ErrorTurnPrefix + errorMessage(err),
	}
	r.turns = append(r.turns, turn)
	return []Event{{Kind: EventAppend, Turn: turn}}
}

// Finish seals the open turn, leaving its content as-is.
func (r *Reducer) Finish() {
	r.seal()
	r.closed = true
}

// Turns returns the turns produced so far in emission order.
func (r *Reducer) Turns() []types.Turn {
	return append([]types.Turn(nil), r.turns...)
}

// Open reports the open text turn, if any.
func (r *Reducer) Open() (types.Turn, bool) {
	if r.open < 0 {
		return types.Turn{}, false
	}
	return r.turns[r.open], true
}

func (r *Reducer) seal() {
	r.open = -1
	r.text.Reset()
}

// MediaKind maps a declared MIME type onto a media turn kind.
// Unrecognized types are treated as images.
func MediaKind(mime string) types.TurnKind {
	if k, ok := types.AssetKindFromMIME(mime); ok {
		return k.TurnKind()
	}
	return types.TurnImage
}

func errorMessage(err error) string {
	if err == nil {
		return "the response stream ended unexpectedly"
	}
	return err.Error()
}

// Result summarizes a completed Run.
type Result struct {
	Turns []types.Turn
	// Err is the provider error that terminated the stream, if any.
	Err error
}

// Media returns the media turns of the result in order.
func (res Result) Media() []types.Turn {
	var out []types.Turn
	for _, t := range res.Turns {
		if t.Kind.IsMedia() {
			out = append(out, t)
		}
	}
	return out
}

// Text returns the concatenated content of the text turns produced by the
// backend, excluding a synthetic error turn.
func (res Result) Text() string {
	var b strings.Builder
	for i, t := range res.Turns {
		if t.Kind != types.TurnText {
			continue
		}
		if res.Err != nil && i == len(res.Turns)-1 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}

// Run drives src to completion, handing every event to emit.
// A provider error (or context cancellation) is converted into an error turn;
// it is reported in Result.Err rather than returned as a failure of Run.
func Run(ctx context.Context, r *Reducer, src iter.Seq2[Fragment, error], emit func(Event)) Result {
	fragments := 0
	var failure error
	for f, err := range src {
		if err != nil {
			failure = err
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			failure = ctxErr
			break
		}
		fragments++
		for _, ev := range r.Feed(f) {
			emit(ev)
		}
	}

	if failure != nil {
		logging.Get(logging.CategoryStream).Warn("Stream failed after %d fragments: %v", fragments, failure)
		for _, ev := range r.Fail(failure) {
			emit(ev)
		}
	} else {
		r.Finish()
	}
	logging.StreamDebug("Stream complete: fragments=%d turns=%d", fragments, len(r.turns))
	return Result{Turns: r.Turns(), Err: failure}
}

// Slice adapts a fixed fragment list into a stream source.
func Slice(fragments ...Fragment) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}
