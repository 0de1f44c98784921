package chat

import (
	"context"
	"sync"
)

type SessionSettings struct {
	TransportSettings  *TransportSettings
	ReconcilerSettings *ReconcilerSettings
	PaginatorSettings  *PaginatorSettings
}

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		TransportSettings:  DefaultTransportSettings(),
		ReconcilerSettings: DefaultReconcilerSettings(),
		PaginatorSettings:  DefaultPaginatorSettings(),
	}
}

// Session wires one store, one auth holder, one rest client, one
// reconciler, and at most one live transport into a single client
// session. construct one per login, tear it down on logout. nothing here
// is package-global.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	wsUrl string

	settings *SessionSettings

	store      *StateStore
	auth       *Auth
	api        *ChatApi
	reconciler *Reconciler
	router     *Router
	paginator  *Paginator

	mutex     sync.Mutex
	transport *Transport
}

func NewSessionWithDefaults(ctx context.Context, apiUrl string, wsUrl string, token string) *Session {
	return NewSession(ctx, apiUrl, wsUrl, token, DefaultSessionSettings())
}

func NewSession(ctx context.Context, apiUrl string, wsUrl string, token string, settings *SessionSettings) *Session {
	cancelCtx, cancel := context.WithCancel(ctx)

	auth := NewAuth()
	if token != "" {
		auth.SetToken(token)
	}
	store := NewStateStore()
	reconciler := NewReconcilerWithSettings(store, auth, settings.ReconcilerSettings)
	router := NewRouter(reconciler)
	api := NewChatApiWithContext(cancelCtx, apiUrl, auth)
	paginator := NewPaginatorWithSettings(api, reconciler, store, settings.PaginatorSettings)

	return &Session{
		ctx:        cancelCtx,
		cancel:     cancel,
		wsUrl:      wsUrl,
		settings:   settings,
		store:      store,
		auth:       auth,
		api:        api,
		reconciler: reconciler,
		router:     router,
		paginator:  paginator,
	}
}

// opens the live channel. only one channel is ever current; a second
// connect replaces the first.
func (self *Session) Connect() *Transport {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.transport != nil {
		self.transport.Close()
	}
	self.transport = NewTransport(self.ctx, self.wsUrl, self.auth, self.router, self.settings.TransportSettings)
	return self.transport
}

func (self *Session) Disconnect() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.transport != nil {
		self.transport.Close()
		self.transport = nil
	}
}

func (self *Session) Transport() *Transport {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.transport
}

func (self *Session) Store() *StateStore {
	return self.store
}

func (self *Session) Auth() *Auth {
	return self.auth
}

func (self *Session) Api() *ChatApi {
	return self.api
}

func (self *Session) Reconciler() *Reconciler {
	return self.reconciler
}

func (self *Session) Paginator() *Paginator {
	return self.paginator
}

func (self *Session) Close() {
	self.Disconnect()
	self.cancel()
	self.api.Close()
	self.store.Close()
}
