// Package trigger decides whether a voice state change is a channel join
// worth greeting.
package trigger

// Presence is a member's voice state after a change. An empty ChannelID
// means the member is not connected to any voice channel.
type Presence struct {
	GuildID   string
	ChannelID string
	Bot       bool
}

// Detect compares the channel a member was in before the change with the
// state after it. It reports the channel to join when a non-bot member moved
// into a channel it was not in before: a first connect or a switch. Mute and
// deafen toggles, disconnects and bot activity never trigger.
func Detect(before string, after Presence) (string, bool) {
	if after.Bot {
		return "", false
	}
	if after.ChannelID == "" || after.ChannelID == before {
		return "", false
	}
	return after.ChannelID, true
}
