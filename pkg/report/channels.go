package report

import "strings"

// Channel labels used by the HTML renderer.
const (
	ChannelServer     = "server"
	ChannelClient     = "client"
	ChannelOp         = "op"
	ChannelMineflayer = "mineflayer"
	ChannelOther      = "other"
)

// channelRules maps action-text keywords to channels, checked in order.
// The first matching rule wins.
var channelRules = []struct {
	keywords []string
	channel  string
}{
	{[]string{"make_operator", "op ", "gamemode", "deop"}, ChannelOp},
	{[]string{"mineflayer", "bot"}, ChannelMineflayer},
	{[]string{"connect_player", "disconnect_player", "send_chat", "chat", "move_player",
		"player_position", "player_health", "player_inventory", "player_equipment",
		"execute_player", "get_entities", "equip_item", "use "}, ChannelClient},
	{[]string{"rcon", "console", "summon", "kill", "give", "teleport", "tp ",
		"weather", "time", "spawn", "data ", "execute", "list", "clear",
		"spawnpoint", "effect", "damage"}, ChannelServer},
}

// ClassifyChannel assigns a step's descriptive action string to a
// channel by keyword.
func ClassifyChannel(action string) string {
	lower := strings.ToLower(action)
	for _, rule := range channelRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.channel
			}
		}
	}
	return ChannelOther
}
