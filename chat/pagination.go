package chat

import (
	"sync"
)

type PaginatorSettings struct {
	PageSize int
}

func DefaultPaginatorSettings() *PaginatorSettings {
	return &PaginatorSettings{
		PageSize: 50,
	}
}

// Paginator composes the rest collaborator with the reconciler to fold
// snapshot and backfill pages into the store. pages are merged through the
// same reconciler as the live stream, so a page and a frame never
// interleave mid-mutation. the coordinator does no de-duplication of its
// own; it relies on the server returning disjoint pages for a cursor.
type Paginator struct {
	api        *ChatApi
	reconciler *Reconciler
	store      *StateStore

	settings *PaginatorSettings

	mutex   sync.Mutex
	loading bool
	hasMore bool
	loaded  bool
}

func NewPaginator(api *ChatApi, reconciler *Reconciler, store *StateStore) *Paginator {
	return NewPaginatorWithSettings(api, reconciler, store, DefaultPaginatorSettings())
}

func NewPaginatorWithSettings(api *ChatApi, reconciler *Reconciler, store *StateStore, settings *PaginatorSettings) *Paginator {
	return &Paginator{
		api:        api,
		reconciler: reconciler,
		store:      store,
		settings:   settings,
		hasMore:    true,
	}
}

// fetches the newest page and replaces the message window and pinned view
// wholesale. only valid as the very first load of a session; a later call
// discards live state that arrived in the meantime.
func (self *Paginator) LoadInitial() error {
	self.setLoading(true)
	defer self.setLoading(false)

	page, err := self.api.GetMessagesSync(self.settings.PageSize, "")
	if err != nil {
		return err
	}

	self.reconciler.MergeInitialPage(page)

	self.mutex.Lock()
	self.hasMore = page.HasMore
	self.loaded = true
	self.mutex.Unlock()
	return nil
}

// fetches a page strictly older than `before` and prepends it
func (self *Paginator) LoadOlder(before Id) error {
	self.setLoading(true)
	defer self.setLoading(false)

	page, err := self.api.GetMessagesSync(self.settings.PageSize, before.String())
	if err != nil {
		return err
	}

	self.reconciler.MergeOlderPage(page)

	self.mutex.Lock()
	self.hasMore = page.HasMore
	self.mutex.Unlock()
	return nil
}

// backfills from the oldest loaded message.
// returns false without a fetch when there is nothing left to load.
func (self *Paginator) LoadOlderFromOldest() (bool, error) {
	if !self.HasMore() {
		return false, nil
	}
	before, ok := self.store.OldestMessageId()
	if !ok {
		return false, nil
	}
	if err := self.LoadOlder(before); err != nil {
		return false, err
	}
	return true, nil
}

func (self *Paginator) LoadEmojiCatalog() error {
	emojiList, err := self.api.GetEmojisSync()
	if err != nil {
		return err
	}
	self.reconciler.MergeEmojiCatalog(emojiList.Emojis)
	return nil
}

func (self *Paginator) LoadAvatarCatalog() error {
	avatarList, err := self.api.GetAvatarsSync()
	if err != nil {
		return err
	}
	self.reconciler.MergeAvatarCatalog(avatarList.Avatars)
	return nil
}

// taken verbatim from the latest page's server-reported flag
func (self *Paginator) HasMore() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.hasMore
}

func (self *Paginator) Loading() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.loading
}

func (self *Paginator) Loaded() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.loaded
}

func (self *Paginator) setLoading(loading bool) {
	self.mutex.Lock()
	self.loading = loading
	self.mutex.Unlock()
}
