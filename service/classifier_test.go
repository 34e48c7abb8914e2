package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-archive/constant"
)

func TestClassify(t *testing.T) {
	cases := map[string]constant.MessageGroup{
		"text_message":           constant.MessageGroupMessages,
		"ban_user":               constant.MessageGroupBans,
		"bad_timeout_global_mod": constant.MessageGroupBans,
		"resubscription":         constant.MessageGroupSubs,
		"paid_sticker":           constant.MessageGroupSubs,
	}
	for messageType, want := range cases {
		got, ok := Classify(messageType)
		assert.True(t, ok, messageType)
		assert.Equal(t, want, got, messageType)
	}
}

func TestClassify_Unrecognized(t *testing.T) {
	for _, messageType := range []string{"", "raid", "TEXT_MESSAGE", "remove_chat_item"} {
		_, ok := Classify(messageType)
		assert.False(t, ok, messageType)
	}
}
