package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gyeh/mrfscan/internal/jsontok"
	"github.com/gyeh/mrfscan/internal/model"
)

type state int

const (
	stateStart state = iota
	stateAwaitingKey
	stateAwaitingArray
	stateInArray
	stateInItem
	stateAwaitingValue
	stateDone
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateAwaitingKey:
		return "awaiting_key"
	case stateAwaitingArray:
		return "awaiting_array"
	case stateInArray:
		return "in_array"
	case stateInItem:
		return "in_item"
	case stateAwaitingValue:
		return "awaiting_value"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type eventKind int

const (
	evObjectStart eventKind = iota
	evObjectEnd
	evArrayStart
	evArrayEnd
	evKey
	evValue
	evEOF
)

func (e eventKind) String() string {
	switch e {
	case evObjectStart:
		return "object start"
	case evObjectEnd:
		return "object end"
	case evArrayStart:
		return "array start"
	case evArrayEnd:
		return "array end"
	case evKey:
		return "key"
	case evValue:
		return "value"
	case evEOF:
		return "end of input"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

type event struct {
	kind eventKind
	key  string
	tok  json.Token
	raw  json.RawMessage
}

type transition func(w *walker, ev event) (state, error)

func to(s state) transition {
	return func(*walker, event) (state, error) { return s, nil }
}

// transitions drives the walker. A (state, event) pair missing from the
// table is a structure error.
var transitions = map[state]map[eventKind]transition{
	stateStart: {
		evObjectStart: to(stateAwaitingKey),
	},
	stateAwaitingKey: {
		evKey:       (*walker).topLevelKey,
		evObjectEnd: to(stateDone),
	},
	stateAwaitingArray: {
		evArrayStart: to(stateInArray),
		evValue:      (*walker).scalarArray,
	},
	stateInArray: {
		evObjectStart: (*walker).beginItem,
		evArrayStart:  (*walker).nestedElement,
		evValue:       (*walker).scalarElement,
		evArrayEnd:    to(stateAwaitingKey),
	},
	stateInItem: {
		evKey:       (*walker).itemKey,
		evObjectEnd: (*walker).endItem,
	},
	stateAwaitingValue: {
		evValue: (*walker).itemValue,
	},
}

// pass selects what a walk collects. The header pass reads metadata and
// provider_references; the items pass only reads in_network.
type pass int

const (
	passHeader pass = iota + 1
	passItems
)

var errStopped = errors.New("stopped")

// walker walks one rate document token by token. It holds at most one
// in_network item in memory.
type walker struct {
	ctx    context.Context
	dec    *json.Decoder
	source string
	doc    *model.RateDocument
	pass   pass
	state  state

	// header is called once, before the first item.
	header func() error
	// item receives every in_network element; bad is called for elements
	// that are not objects.
	item func(map[string]json.RawMessage) error
	bad  func(error)

	headerDone       bool
	refsSeen         bool
	inNetworkSkipped bool

	fields map[string]json.RawMessage
	key    string
	steps  int
}

func newWalker(ctx context.Context, r io.Reader, source string, doc *model.RateDocument, p pass) *walker {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &walker{ctx: ctx, dec: dec, source: source, doc: doc, pass: p}
}

// run drives the state machine until the top-level object closes.
func (w *walker) run() error {
	for w.state != stateDone {
		if w.steps++; w.steps%256 == 0 {
			if err := w.ctx.Err(); err != nil {
				return err
			}
		}
		ev, err := w.next()
		if err != nil {
			return w.structureErr("malformed json", err)
		}
		t, ok := transitions[w.state][ev.kind]
		if !ok {
			return w.structureErr(fmt.Sprintf("unexpected %s in state %s", ev.kind, w.state), nil)
		}
		if w.state, err = t(w, ev); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) next() (event, error) {
	if w.state == stateAwaitingValue {
		var raw json.RawMessage
		if err := w.dec.Decode(&raw); err != nil {
			return event{}, err
		}
		return event{kind: evValue, raw: raw}, nil
	}
	tok, err := w.dec.Token()
	if err == io.EOF {
		return event{kind: evEOF}, nil
	}
	if err != nil {
		return event{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return event{kind: evObjectStart}, nil
		case '}':
			return event{kind: evObjectEnd}, nil
		case '[':
			return event{kind: evArrayStart}, nil
		default:
			return event{kind: evArrayEnd}, nil
		}
	case string:
		if w.state == stateAwaitingKey || w.state == stateInItem {
			return event{kind: evKey, key: t}, nil
		}
	}
	return event{kind: evValue, tok: tok}, nil
}

func (w *walker) structureErr(msg string, err error) error {
	if ctxErr := w.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &model.StructureError{Source: w.source, Msg: msg, Err: err}
}

func (w *walker) topLevelKey(ev event) (state, error) {
	switch ev.key {
	case "provider_references":
		if w.pass == passItems {
			return stateAwaitingKey, w.skipValue()
		}
		w.refsSeen = true
		return stateAwaitingKey, w.readReferences()
	case "in_network":
		if w.pass == passHeader && !w.refsSeen {
			// The header is incomplete; items are read on a second pass.
			w.inNetworkSkipped = true
			return stateAwaitingKey, w.skipValue()
		}
		if !w.headerDone {
			w.headerDone = true
			if err := w.header(); err != nil {
				return stateDone, err
			}
		}
		return stateAwaitingArray, nil
	}
	if w.pass == passItems {
		return stateAwaitingKey, w.skipValue()
	}
	return stateAwaitingKey, w.readMeta(ev.key)
}

func (w *walker) skipValue() error {
	if err := jsontok.Skip(w.dec); err != nil {
		return w.structureErr("malformed json", err)
	}
	return nil
}

func (w *walker) readMeta(key string) error {
	tok, err := w.dec.Token()
	if err != nil {
		return w.structureErr("malformed json", err)
	}
	if _, ok := tok.(json.Delim); ok {
		if err := jsontok.SkipOpened(w.dec); err != nil {
			return w.structureErr("malformed json", err)
		}
		return nil
	}
	if s, ok := jsontok.ScalarText(tok); ok {
		w.doc.SetMeta(key, s)
	}
	return nil
}

// readReferences decodes provider_references one element at a time.
func (w *walker) readReferences() error {
	tok, err := w.dec.Token()
	if err != nil {
		return w.structureErr("malformed json", err)
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		if ok {
			_ = jsontok.SkipOpened(w.dec)
		}
		return w.structureErr("provider_references is not an array", nil)
	}
	for w.dec.More() {
		var raw json.RawMessage
		if err := w.dec.Decode(&raw); err != nil {
			return w.structureErr("malformed provider reference", err)
		}
		w.doc.ProviderReferences = append(w.doc.ProviderReferences, raw)
	}
	if err := jsontok.ExpectDelim(w.dec, ']'); err != nil {
		return w.structureErr("malformed json", err)
	}
	return nil
}

// scalarArray accepts in_network: null.
func (w *walker) scalarArray(ev event) (state, error) {
	if ev.tok != nil {
		return stateDone, w.structureErr(fmt.Sprintf("in_network is %v, not an array", ev.tok), nil)
	}
	return stateAwaitingKey, nil
}

func (w *walker) beginItem(event) (state, error) {
	w.fields = make(map[string]json.RawMessage)
	return stateInItem, nil
}

func (w *walker) nestedElement(event) (state, error) {
	if err := jsontok.SkipOpened(w.dec); err != nil {
		return stateDone, w.structureErr("malformed json", err)
	}
	w.bad(errors.New("in_network element is an array"))
	return stateInArray, nil
}

func (w *walker) scalarElement(ev event) (state, error) {
	w.bad(fmt.Errorf("in_network element is %v", ev.tok))
	return stateInArray, nil
}

func (w *walker) itemKey(ev event) (state, error) {
	w.key = ev.key
	return stateAwaitingValue, nil
}

func (w *walker) itemValue(ev event) (state, error) {
	w.fields[w.key] = ev.raw
	return stateInItem, nil
}

func (w *walker) endItem(event) (state, error) {
	fields := w.fields
	w.fields = nil
	if err := w.item(fields); err != nil {
		return stateDone, err
	}
	return stateInArray, nil
}
