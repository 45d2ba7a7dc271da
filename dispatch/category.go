package dispatch

import "github.com/prilive-com/tgwire/tg"

// Category names a notification channel. Message-bearing categories
// deliver a *tg.Message; the three query categories have their own
// handler types.
type Category string

// Update categories.
const (
	CategoryMessage                  Category = "message"
	CategoryEditedMessage            Category = "edited_message"
	CategoryEditedMessageText        Category = "edited_message_text"
	CategoryEditedMessageCaption     Category = "edited_message_caption"
	CategoryChannelPost              Category = "channel_post"
	CategoryChannelPostText          Category = "channel_post_text"
	CategoryChannelPostCaption       Category = "channel_post_caption"
	CategoryEditedChannelPost        Category = "edited_channel_post"
	CategoryEditedChannelPostText    Category = "edited_channel_post_text"
	CategoryEditedChannelPostCaption Category = "edited_channel_post_caption"
	CategoryInlineQuery              Category = "inline_query"
	CategoryChosenInlineResult       Category = "chosen_inline_result"
	CategoryCallbackQuery            Category = "callback_query"
)

// Message subtype categories, emitted once per populated field of a
// message update.
const (
	CategoryText             Category = "text"
	CategoryAudio            Category = "audio"
	CategoryDocument         Category = "document"
	CategoryPhoto            Category = "photo"
	CategorySticker          Category = "sticker"
	CategoryVideo            Category = "video"
	CategoryVoice            Category = "voice"
	CategoryContact          Category = "contact"
	CategoryLocation         Category = "location"
	CategoryNewChatMembers   Category = "new_chat_members"
	CategoryLeftChatMember   Category = "left_chat_member"
	CategoryNewChatTitle     Category = "new_chat_title"
	CategoryNewChatPhoto     Category = "new_chat_photo"
	CategoryDeleteChatPhoto  Category = "delete_chat_photo"
	CategoryGroupChatCreated Category = "group_chat_created"
)

// messageSubtypes is checked in this order for every message update.
var messageSubtypes = []struct {
	category Category
	present  func(*tg.Message) bool
}{
	{CategoryText, func(m *tg.Message) bool { return m.Text != "" }},
	{CategoryAudio, func(m *tg.Message) bool { return m.Audio != nil }},
	{CategoryDocument, func(m *tg.Message) bool { return m.Document != nil }},
	{CategoryPhoto, func(m *tg.Message) bool { return len(m.Photo) > 0 }},
	{CategorySticker, func(m *tg.Message) bool { return m.Sticker != nil }},
	{CategoryVideo, func(m *tg.Message) bool { return m.Video != nil }},
	{CategoryVoice, func(m *tg.Message) bool { return m.Voice != nil }},
	{CategoryContact, func(m *tg.Message) bool { return m.Contact != nil }},
	{CategoryLocation, func(m *tg.Message) bool { return m.Location != nil }},
	{CategoryNewChatMembers, func(m *tg.Message) bool { return len(m.NewChatMembers) > 0 }},
	{CategoryLeftChatMember, func(m *tg.Message) bool { return m.LeftChatMember != nil }},
	{CategoryNewChatTitle, func(m *tg.Message) bool { return m.NewChatTitle != "" }},
	{CategoryNewChatPhoto, func(m *tg.Message) bool { return len(m.NewChatPhoto) > 0 }},
	{CategoryDeleteChatPhoto, func(m *tg.Message) bool { return m.DeleteChatPhoto }},
	{CategoryGroupChatCreated, func(m *tg.Message) bool { return m.GroupChatCreated }},
}

// derived holds the text/caption categories of the edited and channel
// branches.
type derived struct {
	text, caption Category
}

var derivedCategories = map[Category]derived{
	CategoryEditedMessage:     {CategoryEditedMessageText, CategoryEditedMessageCaption},
	CategoryChannelPost:       {CategoryChannelPostText, CategoryChannelPostCaption},
	CategoryEditedChannelPost: {CategoryEditedChannelPostText, CategoryEditedChannelPostCaption},
}

// IsMessage reports whether handlers of c receive a *tg.Message.
func (c Category) IsMessage() bool {
	switch c {
	case CategoryInlineQuery, CategoryChosenInlineResult, CategoryCallbackQuery:
		return false
	case CategoryMessage, CategoryEditedMessage, CategoryChannelPost, CategoryEditedChannelPost:
		return true
	}
	if _, ok := derivedCategories[c]; ok {
		return true
	}
	for _, d := range derivedCategories {
		if c == d.text || c == d.caption {
			return true
		}
	}
	for _, st := range messageSubtypes {
		if c == st.category {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }
