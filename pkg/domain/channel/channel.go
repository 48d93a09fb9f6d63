// Package channel defines channel-level value types.
package channel

// HomeChannel pairs a direct-message channel with the human on the other end.
// It is a free-standing value: nothing indexes or persists it.
type HomeChannel struct {
	channelID uint64
	userID    *uint64
}

// NewHomeChannel returns a record for channelID with no user attached.
func NewHomeChannel(channelID uint64) HomeChannel {
	return HomeChannel{channelID: channelID}
}

// SetUserID attaches the user owning the channel.
func (h *HomeChannel) SetUserID(userID uint64) {
	h.userID = &userID
}

// UserID returns the attached user, if any.
func (h HomeChannel) UserID() (uint64, bool) {
	if h.userID == nil {
		return 0, false
	}
	return *h.userID, true
}

// ChannelID returns the channel identifier.
func (h HomeChannel) ChannelID() uint64 { return h.channelID }

// Fields renders the record for structured logs.
func (h HomeChannel) Fields() map[string]interface{} {
	fields := map[string]interface{}{"home_channel_id": h.channelID}
	if id, ok := h.UserID(); ok {
		fields["home_user_id"] = id
	}
	return fields
}
