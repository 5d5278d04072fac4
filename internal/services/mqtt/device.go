package mqtt

// DeviceInfo holds the Home Assistant device registry fields shared by
// every client entity, so HA groups them under one device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// SensorConfig is the JSON payload of an HA MQTT sensor discovery message.
type SensorConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	ObjectID            string     `json:"object_id,omitempty"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	JsonAttributesTopic string     `json:"json_attributes_topic,omitempty"`
	Device              DeviceInfo `json:"device"`
	Icon                string     `json:"icon,omitempty"`
}

// NewDeviceInfo creates the device block for a monitor named deviceName.
func NewDeviceInfo(deviceName, version string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"gostation_" + deviceName},
		Name:         deviceName,
		Manufacturer: "gostation-homelab",
		Model:        "iw station monitor",
		SWVersion:    version,
	}
}
