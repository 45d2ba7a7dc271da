// Package testutil provides testing utilities for tgwire.
//
// This package is intended for internal testing only and should not be imported
// by external packages.
//
// # Mock Telegram Server
//
// MockTelegramServer provides a mock Telegram Bot API server. Handlers are
// registered per Bot API method; unregistered methods answer {"ok":true,"result":true}:
//
//	server := testutil.NewMockServer(t)
//	server.On("getUpdates", func(w http.ResponseWriter, r *http.Request) {
//	    testutil.ReplyUpdates(w, testutil.TextUpdate(1, "hello"))
//	})
//	// Use server.BaseURL() as the API base URL
//
// # Request Capture
//
// All requests are captured and can be inspected:
//
//	cap := server.CapturesFor("getUpdates")[0]
//	cap.AssertJSONField(t, "offset", float64(0))
//
// # Test Fixtures
//
//	testutil.TestToken                // Valid bot token format
//	testutil.TestUpdate(1, "Hello")   // message update
//	testutil.TestReply(2, chat, 1, "pong")
package testutil
