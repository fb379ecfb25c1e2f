package story

import (
	"fmt"
	"strings"
)

// Kind is the closed enumeration of action and assertion tags. Tokens are
// accepted in any case and with - or _ separators; they normalize to
// lower_snake.
type Kind string

const (
	// Server-plane actions.
	KindExecuteRconCommand     Kind = "execute_rcon_command"
	KindExecuteRconWithCapture Kind = "execute_rcon_with_capture"
	KindExecuteRconRaw         Kind = "execute_rcon_raw"
	KindExecutePlayerCommand   Kind = "execute_player_command"
	KindExecutePlayerRaw       Kind = "execute_player_raw"
	KindMakeOperator           Kind = "make_operator"
	KindGiveItem               Kind = "give_item"
	KindEquipItem              Kind = "equip_item"
	KindRemoveItem             Kind = "remove_item"
	KindClearInventory         Kind = "clear_inventory"
	KindSetSpawnPoint          Kind = "set_spawn_point"
	KindTeleportPlayer         Kind = "teleport_player"
	KindGamemodeChange         Kind = "gamemode_change"
	KindKillPlayer             Kind = "kill_player"
	KindHealPlayer             Kind = "heal_player"
	KindSetPlayerHealth        Kind = "set_player_health"
	KindSpawnEntity            Kind = "spawn_entity"
	KindKillEntity             Kind = "kill_entity"
	KindSetEntityHealth        Kind = "set_entity_health"
	KindGetEntityHealth        Kind = "get_entity_health"
	KindDamageEntity           Kind = "damage_entity"
	KindRemoveEntities         Kind = "remove_entities"
	KindSetWeather             Kind = "set_weather"
	KindSetTime                Kind = "set_time"
	KindGetWorldTime           Kind = "get_world_time"
	KindGetWeather             Kind = "get_weather"

	// Client-plane actions (player simulation).
	KindConnectPlayer      Kind = "connect_player"
	KindDisconnectPlayer   Kind = "disconnect_player"
	KindSendChatMessage    Kind = "send_chat_message"
	KindMovePlayer         Kind = "move_player"
	KindGetPlayerPosition  Kind = "get_player_position"
	KindGetPlayerHealth    Kind = "get_player_health"
	KindGetPlayerInventory Kind = "get_player_inventory"
	KindGetPlayerEquipment Kind = "get_player_equipment"
	KindGetEntities        Kind = "get_entities"
	KindGetEntitiesInView  Kind = "get_entities_in_view"
	KindGetEntityByName    Kind = "get_entity_by_name"

	// Waits and service checks.
	KindWait               Kind = "wait"
	KindWaitForEntitySpawn Kind = "wait_for_entity_spawn"
	KindWaitForChatMessage Kind = "wait_for_chat_message"
	KindCheckServiceHealth Kind = "check_service_health"

	// State capture and comparison.
	KindStoreState           Kind = "store_state"
	KindPrintStoredState     Kind = "print_stored_state"
	KindCompareStates        Kind = "compare_states"
	KindPrintStateComparison Kind = "print_state_comparison"
	KindExtractWithJSONPath  Kind = "extract_with_jsonpath"
	KindFilterEntities       Kind = "filter_entities"

	// Assertions.
	KindAssertEntityExists     Kind = "assert_entity_exists"
	KindAssertEntityMissing    Kind = "assert_entity_missing"
	KindAssertPlayerHasItem    Kind = "assert_player_has_item"
	KindAssertResponseContains Kind = "assert_response_contains"
	KindAssertLogContains      Kind = "assert_log_contains"
	KindAssertJSONEquals       Kind = "assert_json_equals"
	KindAssertCondition        Kind = "assert_condition"

	// Assertion-section comparator tags.
	KindEntityHealth    Kind = "entity_health"
	KindEntityExists    Kind = "entity_exists"
	KindPlayerInventory Kind = "player_inventory"
)

// allKinds is the closed set. Anything else is a ParseError.
var allKinds = map[Kind]bool{
	KindExecuteRconCommand: true, KindExecuteRconWithCapture: true,
	KindExecuteRconRaw: true, KindExecutePlayerCommand: true,
	KindExecutePlayerRaw: true, KindMakeOperator: true, KindGiveItem: true,
	KindEquipItem: true, KindRemoveItem: true, KindClearInventory: true,
	KindSetSpawnPoint: true, KindTeleportPlayer: true, KindGamemodeChange: true,
	KindKillPlayer: true, KindHealPlayer: true, KindSetPlayerHealth: true,
	KindSpawnEntity: true, KindKillEntity: true, KindSetEntityHealth: true,
	KindGetEntityHealth: true, KindDamageEntity: true, KindRemoveEntities: true,
	KindSetWeather: true, KindSetTime: true, KindGetWorldTime: true,
	KindGetWeather: true, KindConnectPlayer: true, KindDisconnectPlayer: true,
	KindSendChatMessage: true, KindMovePlayer: true, KindGetPlayerPosition: true,
	KindGetPlayerHealth: true, KindGetPlayerInventory: true,
	KindGetPlayerEquipment: true, KindGetEntities: true,
	KindGetEntitiesInView: true, KindGetEntityByName: true, KindWait: true,
	KindWaitForEntitySpawn: true, KindWaitForChatMessage: true,
	KindCheckServiceHealth: true, KindStoreState: true,
	KindPrintStoredState: true, KindCompareStates: true,
	KindPrintStateComparison: true, KindExtractWithJSONPath: true,
	KindFilterEntities: true, KindAssertEntityExists: true,
	KindAssertEntityMissing: true, KindAssertPlayerHasItem: true,
	KindAssertResponseContains: true, KindAssertLogContains: true,
	KindAssertJSONEquals: true, KindAssertCondition: true,
	KindEntityHealth: true, KindEntityExists: true, KindPlayerInventory: true,
}

// legacyAliases maps deprecated tokens to canonical kinds. Using one
// produces a deprecation warning from the parser.
var legacyAliases = map[string]Kind{
	"player_command": KindExecutePlayerCommand,
	"server_command": KindExecuteRconCommand,
}

// NormalizeKind maps a raw token to a Kind. The second return is a
// deprecation note (empty unless a legacy alias was used).
func NormalizeKind(token string) (Kind, string, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(token), "-", "_"))
	if canon, ok := legacyAliases[norm]; ok {
		return canon, fmt.Sprintf("action %q is deprecated, use %q", token, canon), nil
	}
	k := Kind(norm)
	if !allKinds[k] {
		return "", "", fmt.Errorf("unknown action kind %q", token)
	}
	return k, "", nil
}

// IsAssertion reports whether the kind is legal in an assertions section.
func (k Kind) IsAssertion() bool {
	switch k {
	case KindAssertEntityExists, KindAssertEntityMissing,
		KindAssertPlayerHasItem, KindAssertResponseContains,
		KindAssertLogContains, KindAssertJSONEquals, KindAssertCondition,
		KindEntityHealth, KindEntityExists, KindPlayerInventory:
		return true
	}
	return false
}

// requiredFields lists the per-kind required parameters, enforced at parse
// time and re-checked by the orchestrator on materialized values.
var requiredFields = map[Kind][]string{
	KindExecuteRconCommand:     {"command"},
	KindExecuteRconWithCapture: {"command", "storeAs"},
	KindExecuteRconRaw:         {"command"},
	KindExecutePlayerCommand:   {"player", "command"},
	KindExecutePlayerRaw:       {"player", "command"},
	KindMakeOperator:           {"player"},
	KindGiveItem:               {"player", "item"},
	KindEquipItem:              {"player", "item", "slot"},
	KindRemoveItem:             {"player", "item"},
	KindClearInventory:         {"player"},
	KindSetSpawnPoint:          {"player", "location"},
	KindTeleportPlayer:         {"player", "location"},
	KindGamemodeChange:         {"player", "value"},
	KindKillPlayer:             {"player"},
	KindHealPlayer:             {"player"},
	KindSetPlayerHealth:        {"player", "value"},
	KindSpawnEntity:            {"entityType", "location"},
	KindKillEntity:             {"entity"},
	KindSetEntityHealth:        {"entity", "value"},
	KindGetEntityHealth:        {"entity"},
	KindDamageEntity:           {"entity", "value"},
	KindSetWeather:             {"weather"},
	KindSetTime:                {"value"},
	KindConnectPlayer:          {"player"},
	KindDisconnectPlayer:       {"player"},
	KindSendChatMessage:        {"player", "message"},
	KindMovePlayer:             {"player", "location"},
	KindGetPlayerPosition:      {"player"},
	KindGetPlayerHealth:        {"player"},
	KindGetPlayerInventory:     {"player"},
	KindGetPlayerEquipment:     {"player"},
	KindGetEntities:            {"player"},
	KindGetEntitiesInView:      {"player"},
	KindGetEntityByName:        {"player", "entity"},
	KindWaitForEntitySpawn:     {"entity"},
	KindWaitForChatMessage:     {"pattern"},
	KindStoreState:             {"storeAs"},
	KindPrintStoredState:       {"sourceVariable"},
	KindCompareStates:          {"state1", "state2"},
	KindPrintStateComparison:   {"state1", "state2"},
	KindExtractWithJSONPath:    {"source", "jsonPath"},
	KindFilterEntities:         {"source", "filterType", "filterValue"},
	KindAssertEntityExists:     {"entity"},
	KindAssertEntityMissing:    {"entity"},
	KindAssertPlayerHasItem:    {"player", "item"},
	KindAssertResponseContains: {"source", "contains"},
	KindAssertLogContains:      {"contains"},
	KindAssertJSONEquals:       {"source", "expected"},
	KindAssertCondition:        {"condition"},
	KindEntityHealth:           {"entity", "condition", "value"},
	KindEntityExists:           {"entity"},
	KindPlayerInventory:        {"player", "item"},
}
