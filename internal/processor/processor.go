package processor

import (
	"errors"

	"github.com/raaihank/relay-scrubber/internal/annotated"
)

var (
	// ErrNilState is returned when a walk is started without a state
	ErrNilState = errors.New("processor: nil state")
	// ErrNilProcessor is returned when a walk is started without a processor
	ErrNilProcessor = errors.New("processor: nil processor")
)

// ActionKind tells the engine what to do with a node after a hook
type ActionKind int

const (
	ActionKeep ActionKind = iota
	ActionDelete
	ActionDeleteWithError
)

// Action is the result of a processor hook
type Action struct {
	Kind  ActionKind
	Error annotated.Error
}

// Keep continues with the node unchanged
func Keep() Action { return Action{Kind: ActionKeep} }

// Delete removes the value without recording an error
func Delete() Action { return Action{Kind: ActionDelete} }

// DeleteWithError removes the value, records err and keeps the original
// value in the node's metadata.
func DeleteWithError(err annotated.Error) Action {
	return Action{Kind: ActionDeleteWithError, Error: err}
}

// Processor is invoked for every node of a walk. BeforeProcess runs first
// and can remove the node before any type specific hook sees it.
//
// A processor may additionally implement any of the hook interfaces below.
// Missing scalar hooks leave the value alone and missing container hooks
// recurse into the children.
type Processor interface {
	BeforeProcess(value annotated.Value, meta *annotated.Meta, state *State) Action
}

// AfterProcessor runs after a node and its children were processed
type AfterProcessor interface {
	AfterProcess(value annotated.Value, meta *annotated.Meta, state *State)
}

type StringProcessor interface {
	ProcessString(value *string, meta *annotated.Meta, state *State) Action
}

type BoolProcessor interface {
	ProcessBool(value *bool, meta *annotated.Meta, state *State) Action
}

type I64Processor interface {
	ProcessI64(value *int64, meta *annotated.Meta, state *State) Action
}

type U64Processor interface {
	ProcessU64(value *uint64, meta *annotated.Meta, state *State) Action
}

type F64Processor interface {
	ProcessF64(value *float64, meta *annotated.Meta, state *State) Action
}

// ArrayProcessor replaces the default recursion over array elements. Call
// ProcessChildValues to recurse explicitly.
type ArrayProcessor interface {
	ProcessArray(value *annotated.Array, meta *annotated.Meta, state *State) Action
}

// ObjectProcessor replaces the default recursion over object entries
type ObjectProcessor interface {
	ProcessObject(value *annotated.Object, meta *annotated.Meta, state *State) Action
}

// PairListProcessor replaces the default recursion over pair lists
type PairListProcessor interface {
	ProcessPairList(value annotated.Array, meta *annotated.Meta, state *State) Action
}

// ProcessValue walks a tree with a processor. Failures on single nodes are
// recorded in their metadata; the only errors returned are for missing
// arguments.
func ProcessValue(a *annotated.Annotated, p Processor, state *State) error {
	if p == nil {
		return ErrNilProcessor
	}
	if state == nil {
		return ErrNilState
	}
	if a == nil {
		return nil
	}
	processValue(a, p, state)
	return nil
}

func processValue(a *annotated.Annotated, p Processor, state *State) {
	if state.depth > state.walk.maxDepth {
		if a.Value != nil {
			a.Meta.AddError(annotated.NewError(annotated.ErrTooDeep))
			a.Value = nil
		}
		return
	}

	if applyAction(a, p.BeforeProcess(a.Value, &a.Meta, state)) {
		return
	}

	if a.Value != nil {
		if applyAction(a, dispatch(a, p, state)) {
			return
		}
	}

	if after, ok := p.(AfterProcessor); ok {
		after.AfterProcess(a.Value, &a.Meta, state)
	}
}

// applyAction applies a hook result and reports whether the value is gone
func applyAction(a *annotated.Annotated, action Action) bool {
	switch action.Kind {
	case ActionDelete:
		a.Value = nil
		return true
	case ActionDeleteWithError:
		a.Meta.AddError(action.Error)
		if a.Value != nil && a.Meta.OriginalValue == nil {
			a.Meta.SetOriginalValue(a.Value)
		}
		a.Value = nil
		return true
	default:
		return false
	}
}

func dispatch(a *annotated.Annotated, p Processor, state *State) Action {
	switch v := a.Value.(type) {
	case annotated.String:
		if sp, ok := p.(StringProcessor); ok {
			s := string(v)
			action := sp.ProcessString(&s, &a.Meta, state)
			a.Value = annotated.String(s)
			return action
		}
	case annotated.Bool:
		if bp, ok := p.(BoolProcessor); ok {
			b := bool(v)
			action := bp.ProcessBool(&b, &a.Meta, state)
			a.Value = annotated.Bool(b)
			return action
		}
	case annotated.I64:
		if ip, ok := p.(I64Processor); ok {
			n := int64(v)
			action := ip.ProcessI64(&n, &a.Meta, state)
			a.Value = annotated.I64(n)
			return action
		}
	case annotated.U64:
		if up, ok := p.(U64Processor); ok {
			n := uint64(v)
			action := up.ProcessU64(&n, &a.Meta, state)
			a.Value = annotated.U64(n)
			return action
		}
	case annotated.F64:
		if fp, ok := p.(F64Processor); ok {
			f := float64(v)
			action := fp.ProcessF64(&f, &a.Meta, state)
			a.Value = annotated.F64(f)
			return action
		}
	case annotated.Array:
		if state.attrs.PairList {
			if pp, ok := p.(PairListProcessor); ok {
				return pp.ProcessPairList(v, &a.Meta, state)
			}
			ProcessPairList(v, p, state)
			return Keep()
		}
		if ap, ok := p.(ArrayProcessor); ok {
			action := ap.ProcessArray(&v, &a.Meta, state)
			a.Value = v
			return action
		}
		ProcessChildValues(v, p, state)
	case *annotated.Object:
		if op, ok := p.(ObjectProcessor); ok {
			return op.ProcessObject(v, &a.Meta, state)
		}
		ProcessChildValues(v, p, state)
	}
	return Keep()
}

// ProcessChildValues recurses into the children of a container value in
// their natural order. Scalars have no children.
func ProcessChildValues(v annotated.Value, p Processor, state *State) {
	switch t := v.(type) {
	case annotated.Array:
		for i, child := range t {
			if child == nil {
				child = &annotated.Annotated{}
				t[i] = child
			}
			processValue(child, p, state.EnterIndex(i, child.Value))
		}
	case *annotated.Object:
		t.Range(func(key string, child *annotated.Annotated) bool {
			processValue(child, p, state.EnterKey(key, child.Value))
			return true
		})
	}
}

// ProcessPairList recurses into a list of [key, value] pairs. Values of
// well-formed pairs are entered under their key so selectors can address
// them by name; other elements are entered by index.
func ProcessPairList(list annotated.Array, p Processor, state *State) {
	for i, item := range list {
		if item == nil {
			continue
		}
		if key, value, ok := SplitPair(item); ok {
			processValue(value, p, state.EnterKey(key, value.Value))
			continue
		}
		processValue(item, p, state.EnterIndex(i, item.Value))
	}
}

// SplitPair returns the key and the value slot of a [key, value] element
func SplitPair(item *annotated.Annotated) (string, *annotated.Annotated, bool) {
	pair, ok := item.Value.(annotated.Array)
	if !ok || len(pair) != 2 || pair[0] == nil || pair[1] == nil {
		return "", nil, false
	}
	key, ok := pair[0].Value.(annotated.String)
	if !ok {
		return "", nil, false
	}
	return string(key), pair[1], true
}
