package models

// Settings represents application-wide settings
type Settings struct {
	CameraURL            string `json:"camera_url"`             // MJPEG endpoint of the camera
	CameraWidth          int    `json:"camera_width"`           // preferred capture width
	CameraHeight         int    `json:"camera_height"`          // preferred capture height
	CameraFacing         string `json:"camera_facing"`          // "user" for front-facing
	AcquireTimeoutSec    int    `json:"acquire_timeout_sec"`    // how long to wait for the camera
	Timezone             string `json:"timezone"`               // IANA timezone name or "Local"
	NotificationsEnabled bool   `json:"notifications_enabled"`  // master switch for completion sinks
	TrayEnabled          bool   `json:"tray_enabled"`           // deliver to the local bridge app
	MQTTBroker           string `json:"mqtt_broker,omitempty"`  // e.g. tcp://localhost:1883, empty disables MQTT
	MQTTTopic            string `json:"mqtt_topic,omitempty"`   // topic completion events are published on
	MQTTClientID         string `json:"mqtt_client_id,omitempty"`
}
