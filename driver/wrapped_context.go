package driver

import "sync"

// WrappedContext overlays a delegate Context with a private local-key store
// so the Parallel Scheduler can give each concurrently-running chunk its own
// user-data without losing access to keys meant to be shared ("global")
// across every chunk of one invocation.
//
// Writing a local key to a value, then deleting it, must shadow the
// delegate: a tombstone set records explicit deletions so a later read never
// falls through to a delegate value that happened to share the same name.
type WrappedContext struct {
	Delegate *Context

	localMu sync.Mutex
	local   map[string]any
	tomb    map[string]bool

	errMu          sync.Mutex
	errorsDetected bool
}

// WrapContext creates a WrappedContext over delegate.
func WrapContext(delegate *Context) *WrappedContext {
	return &WrappedContext{
		Delegate: delegate,
		local:    map[string]any{},
		tomb:     map[string]bool{},
	}
}

func (w *WrappedContext) rawGet(kind dataKind, name string) (any, bool) {
	if kind == keyGlobal {
		return w.Delegate.rawGet(kind, name)
	}
	w.localMu.Lock()
	defer w.localMu.Unlock()
	if w.tomb[name] {
		return nil, false
	}
	v, ok := w.local[name]
	return v, ok
}

func (w *WrappedContext) rawPut(kind dataKind, name string, v any) {
	if kind == keyGlobal {
		w.Delegate.rawPut(kind, name, v)
		return
	}
	w.localMu.Lock()
	defer w.localMu.Unlock()
	delete(w.tomb, name)
	w.local[name] = v
}

func (w *WrappedContext) rawDelete(kind dataKind, name string) {
	if kind == keyGlobal {
		w.Delegate.rawDelete(kind, name)
		return
	}
	w.localMu.Lock()
	defer w.localMu.Unlock()
	delete(w.local, name)
	w.tomb[name] = true
}

func (w *WrappedContext) CheckCanceled() error { return w.Delegate.CheckCanceled() }
func (w *WrappedContext) SetDone(v float64)    { w.Delegate.SetDone(v) }
func (w *WrappedContext) Done() float64        { return w.Delegate.Done() }

func (w *WrappedContext) ConfigValue(key string) (string, bool) { return w.Delegate.ConfigValue(key) }

// GetScope returns the invocation's scope, delegated from the parent
// Context (scope is invocation-wide, never overlaid per chunk).
func (w *WrappedContext) GetScope() Scope { return w.Delegate.GetScope() }

// GetBus returns the invocation's message bus, delegated from the parent.
func (w *WrappedContext) GetBus() *MessageBus { return w.Delegate.GetBus() }

// MarkErrorsDetected sets errorsDetected in this wrapped context's own
// (local) store only — it does not propagate to the delegate.
func (w *WrappedContext) MarkErrorsDetected() {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	w.errorsDetected = true
}

func (w *WrappedContext) ClearErrorsDetected() {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	w.errorsDetected = false
}

// HasErrorsDetected reports this wrapped context's own errorsDetected flag.
func (w *WrappedContext) HasErrorsDetected() bool {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.errorsDetected
}

// Emit passes through to the delegate's bus, but additionally marks
// errorsDetected locally for ERROR messages.
func (w *WrappedContext) Emit(m Message) {
	if cm, ok := m.(CompilerMessage); ok && cm.Kind == Error {
		w.MarkErrorsDetected()
	}
	w.Delegate.Bus.Emit(m)
}

// BuildContext is the interface the Chunk Runner, Output Cleaner and
// builders depend on, satisfied by both Context and WrappedContext.
type BuildContext interface {
	dataStore
	Emit(Message)
	CheckCanceled() error
	SetDone(float64)
	Done() float64
	ConfigValue(key string) (string, bool)
	MarkErrorsDetected()
	ClearErrorsDetected()
	HasErrorsDetected() bool
	GetScope() Scope
	GetBus() *MessageBus
}

var (
	_ BuildContext = (*Context)(nil)
	_ BuildContext = (*WrappedContext)(nil)
)
