package chat

// resolves reaction emoji names against the custom emoji catalog and
// attaches the display url. a miss is not an error; the reaction stays
// usable without custom art.
type EmojiHydrator struct {
	store *StateStore
}

func NewEmojiHydrator(store *StateStore) *EmojiHydrator {
	return &EmojiHydrator{
		store: store,
	}
}

func (self *EmojiHydrator) Hydrate(message *Message) {
	self.store.mutex.Lock()
	defer self.store.mutex.Unlock()
	self.hydrateLocked(message)
}

// caller holds the store mutex
func (self *EmojiHydrator) hydrateLocked(message *Message) {
	for _, reaction := range message.Reactions {
		self.hydrateReactionLocked(reaction)
	}
}

func (self *EmojiHydrator) hydrateReactionLocked(reaction *Reaction) {
	if reaction.CustomEmojiUrl != "" {
		return
	}
	if emoji, ok := self.store.emojiNames[reaction.Emoji]; ok {
		reaction.CustomEmojiUrl = emoji.Url
	}
}
