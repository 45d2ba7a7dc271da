package testutil

import (
	"encoding/json"

	"github.com/prilive-com/tgwire/tg"
)

// Test constants for consistent test data.
const (
	// TestToken is a valid-format bot token for testing.
	TestToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"

	// TestChatID is a test chat ID.
	TestChatID = int64(123456789)

	// TestUserID is a test user ID.
	TestUserID = int64(987654321)

	// TestBotID is a test bot ID.
	TestBotID = int64(123456789)

	// TestUsername is a test username.
	TestUsername = "testuser"

	// TestBotUsername is a test bot username.
	TestBotUsername = "testbot"
)

// TestUser returns a test user fixture.
func TestUser() *tg.User {
	return &tg.User{
		ID:        TestUserID,
		FirstName: "Test",
		LastName:  "User",
		Username:  TestUsername,
	}
}

// TestChat returns a test private chat fixture.
func TestChat() *tg.Chat {
	return &tg.Chat{
		ID:        TestChatID,
		Type:      "private",
		FirstName: "Test",
		Username:  TestUsername,
	}
}

// TestMessage returns a test text message in TestChat.
func TestMessage(messageID int, text string) *tg.Message {
	return TestMessageInChat(messageID, TestChatID, text)
}

// TestMessageInChat returns a test text message in the given chat.
func TestMessageInChat(messageID int, chatID int64, text string) *tg.Message {
	return &tg.Message{
		MessageID: messageID,
		From:      TestUser(),
		Date:      1234567890,
		Chat:      &tg.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}
}

// TestReply returns a text message replying to messageID in chatID.
func TestReply(messageID int, chatID int64, replyTo int, text string) *tg.Message {
	msg := TestMessageInChat(messageID, chatID, text)
	msg.ReplyToMessage = &tg.Message{
		MessageID: replyTo,
		Date:      1234567800,
		Chat:      &tg.Chat{ID: chatID, Type: "private"},
	}
	return msg
}

// TestUpdate returns a message update carrying text.
func TestUpdate(updateID int, text string) tg.Update {
	return tg.Update{
		UpdateID: updateID,
		Message:  TestMessage(updateID, text),
	}
}

// TestCallbackUpdate returns a callback_query update.
func TestCallbackUpdate(updateID int, cbID, data string) tg.Update {
	return tg.Update{
		UpdateID: updateID,
		CallbackQuery: &tg.CallbackQuery{
			ID:           cbID,
			From:         TestUser(),
			ChatInstance: "test-instance",
			Data:         data,
		},
	}
}

// UpdateJSON converts u to its wire shape for ReplyUpdates.
func UpdateJSON(u tg.Update) map[string]any {
	data, err := json.Marshal(u)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(err)
	}
	return m
}

// TextUpdate is UpdateJSON(TestUpdate(updateID, text)).
func TextUpdate(updateID int, text string) map[string]any {
	return UpdateJSON(TestUpdate(updateID, text))
}
