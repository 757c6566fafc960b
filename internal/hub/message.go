/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package hub

import "encoding/json"

// Message actions understood by the hub. Anything else is relayed to the
// other connections untouched.
const (
	ActionSettingsInitialized = "settings_initialized"
	ActionSettingsUpdated     = "settings_updated"
	ActionUpdateSetting       = "update_setting"
	ActionSettingChanged      = "setting_changed"
	ActionPlay                = "play"
	ActionStopAll             = "stopAll"
	ActionSoundStarted        = "sound_started"
	ActionSoundEnded          = "sound_ended"
	ActionSoundsUpdated       = "sounds_updated"
)

// Message is one structured frame on the duplex channel.
type Message struct {
	Action   string         `json:"action"`
	SoundID  string         `json:"soundId,omitempty"`
	Setting  string         `json:"setting,omitempty"`
	Value    any            `json:"value,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Encode marshals the message for the wire. Marshal cannot fail for this
// shape with JSON-derived values, so errors collapse to an empty frame the
// caller logs and skips.
func Encode(msg Message) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, false
	}
	return data, true
}
