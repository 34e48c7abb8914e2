package service

import "chat-archive/constant"

// messageTypes maps every event type either platform can emit to its group.
// Types missing here are dropped on ingestion.
var messageTypes = map[string]constant.MessageGroup{
	"text_message":                         constant.MessageGroupMessages,
	"highlighted_message":                  constant.MessageGroupMessages,
	"send_message_in_subscriber_only_mode": constant.MessageGroupMessages,

	"ban_user":                  constant.MessageGroupBans,
	"already_banned":            constant.MessageGroupBans,
	"bad_ban_self":              constant.MessageGroupBans,
	"bad_ban_broadcaster":       constant.MessageGroupBans,
	"bad_ban_admin":             constant.MessageGroupBans,
	"bad_ban_global_mod":        constant.MessageGroupBans,
	"bad_ban_staff":             constant.MessageGroupBans,
	"ban_success":               constant.MessageGroupBans,
	"bad_unban_no_ban":          constant.MessageGroupBans,
	"unban_success":             constant.MessageGroupBans,
	"channel_suspended_message": constant.MessageGroupBans,
	"timeout_success":           constant.MessageGroupBans,
	"bad_timeout_self":          constant.MessageGroupBans,
	"bad_timeout_broadcaster":   constant.MessageGroupBans,
	"bad_timeout_mod":           constant.MessageGroupBans,
	"bad_timeout_admin":         constant.MessageGroupBans,
	"bad_timeout_global_mod":    constant.MessageGroupBans,
	"bad_timeout_staff":         constant.MessageGroupBans,

	"subscription":                            constant.MessageGroupSubs,
	"resubscription":                          constant.MessageGroupSubs,
	"subscription_gift":                       constant.MessageGroupSubs,
	"anonymous_subscription_gift":             constant.MessageGroupSubs,
	"anonymous_mystery_subscription_gift":     constant.MessageGroupSubs,
	"mystery_subscription_gift":               constant.MessageGroupSubs,
	"extend_subscription":                     constant.MessageGroupSubs,
	"standard_pay_forward":                    constant.MessageGroupSubs,
	"community_pay_forward":                   constant.MessageGroupSubs,
	"prime_community_gift_received":           constant.MessageGroupSubs,
	"membership_item":                         constant.MessageGroupSubs,
	"paid_message":                            constant.MessageGroupSubs,
	"paid_sticker":                            constant.MessageGroupSubs,
	"sponsorships_gift_purchase_announcement": constant.MessageGroupSubs,
}

// Classify returns the group of an event type. The bool is false for types
// that are not recognized.
func Classify(messageType string) (constant.MessageGroup, bool) {
	group, ok := messageTypes[messageType]
	return group, ok
}
