package signal

import "sync"

// Kind identifies a signal.
type Kind int

const (
	// CredentialExpired: a call was about to go out with a stale credential.
	CredentialExpired Kind = iota + 1
	// AuthorizationExpired: the server answered 401.
	AuthorizationExpired
	// AuthorizationForbidden: the server answered 403.
	AuthorizationForbidden
)

func (k Kind) String() string {
	switch k {
	case CredentialExpired:
		return "credential_expired"
	case AuthorizationExpired:
		return "authorization_expired"
	case AuthorizationForbidden:
		return "authorization_forbidden"
	default:
		return "unknown"
	}
}

// Reasons carried by authorization events.
const (
	ReasonTokenExpired = "token_expired"
	ReasonForbidden    = "forbidden"
)

// Event is the payload of an authorization signal.
type Event struct {
	Kind    Kind
	Reason  string
	Message string
	Path    string // request path that triggered the signal
}

type handler struct {
	id   uint64
	kind Kind
	fn   func(Event)
}

// Bus is a typed observer registry. The zero value is not usable; use New.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscription is a registration handle.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Release unregisters the handler. Safe to call more than once.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.id)
	})
}

// OnCredentialExpired registers fn for CredentialExpired.
func (b *Bus) OnCredentialExpired(fn func()) *Subscription {
	return b.add(CredentialExpired, func(Event) { fn() })
}

// OnAuthorizationExpired registers fn for AuthorizationExpired.
func (b *Bus) OnAuthorizationExpired(fn func(Event)) *Subscription {
	return b.add(AuthorizationExpired, fn)
}

// OnAuthorizationForbidden registers fn for AuthorizationForbidden.
func (b *Bus) OnAuthorizationForbidden(fn func(Event)) *Subscription {
	return b.add(AuthorizationForbidden, fn)
}

func (b *Bus) add(kind Kind, fn func(Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers = append(b.handlers, handler{id: b.nextID, kind: kind, fn: fn})
	return &Subscription{bus: b, id: b.nextID}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// EmitCredentialExpired notifies CredentialExpired handlers.
func (b *Bus) EmitCredentialExpired() {
	b.emit(Event{Kind: CredentialExpired})
}

// EmitAuthorizationExpired notifies AuthorizationExpired handlers.
func (b *Bus) EmitAuthorizationExpired(ev Event) {
	ev.Kind = AuthorizationExpired
	b.emit(ev)
}

// EmitAuthorizationForbidden notifies AuthorizationForbidden handlers.
func (b *Bus) EmitAuthorizationForbidden(ev Event) {
	ev.Kind = AuthorizationForbidden
	b.emit(ev)
}

func (b *Bus) emit(ev Event) {
	b.mu.Lock()
	var targets []func(Event)
	for _, h := range b.handlers {
		if h.kind == ev.Kind {
			targets = append(targets, h.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}
