package mqtt

import "strings"

// DefaultRoot is the first topic level when no root is configured.
const DefaultRoot = "orchestra"

// Topics builds the orchestra topic tree under one root.
//
//	{root}/system/status              retained online/offline (LWT)
//	{root}/event/{source}/{type}      every bus event, not retained
//	{root}/device/{id}/state          retained last lifecycle state
//
// Ids and event types are inserted as single levels: '/', '+' and '#' are
// replaced with '_' so a device id can never widen a subscription.
type Topics struct {
	Root string
}

func (t Topics) root() string {
	if t.Root == "" {
		return DefaultRoot
	}
	return t.Root
}

// SystemStatus is the retained online/offline topic.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// Event is the topic for one bus event.
func (t Topics) Event(source, eventType string) string {
	return t.root() + "/event/" + level(source) + "/" + level(eventType)
}

// DeviceState is the retained lifecycle state topic of a device.
func (t Topics) DeviceState(deviceID string) string {
	return t.root() + "/device/" + level(deviceID) + "/state"
}

// AllEvents matches every event topic.
func (t Topics) AllEvents() string {
	return t.root() + "/event/#"
}

// AllDeviceStates matches every device state topic.
func (t Topics) AllDeviceStates() string {
	return t.root() + "/device/+/state"
}

var levelReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

func level(s string) string {
	if s == "" {
		return "_"
	}
	return levelReplacer.Replace(s)
}
