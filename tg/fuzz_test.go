package tg

import (
	"encoding/json"
	"testing"
)

// FuzzUpdateKind decodes arbitrary bytes as an Update and classifies it.
// Neither step may panic.
func FuzzUpdateKind(f *testing.F) {
	f.Add([]byte(`{"update_id":1,"message":{"message_id":1,"chat":{"id":1},"text":"hi"}}`))
	f.Add([]byte(`{"update_id":2,"callback_query":{"id":"x","data":"d"}}`))
	f.Add([]byte(`{"update_id":3,"message":{"reply_to_message":{"message_id":2}}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`{invalid`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var u Update
		if err := json.Unmarshal(data, &u); err != nil {
			return
		}
		_ = u.Kind()
		if u.Message != nil {
			_ = u.Message.Command()
			_ = u.Message.ChatID()
		}
	})
}
