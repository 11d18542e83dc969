package cli

import (
	"fmt"

	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/storage"
	"github.com/julianstephens/repcam/internal/validation"
)

// SettingsCmd shows the settings, or updates the fields given as flags.
// Empty flags leave the stored value alone.
type SettingsCmd struct {
	CameraURL      string `name:"camera-url" help:"MJPEG camera endpoint, or a file:// directory of stills."`
	CameraWidth    int    `help:"Preferred capture width."`
	CameraHeight   int    `help:"Preferred capture height."`
	CameraFacing   string `help:"Camera facing hint sent to the camera." enum:",user,environment" default:""`
	AcquireTimeout int    `help:"Seconds to wait for the camera."`
	Timezone       string `help:"IANA timezone name, or Local."`
	Notifications  string `help:"Turn completion notifications on or off." enum:",on,off" default:""`
	Tray           string `help:"Turn the tray bridge sink on or off." enum:",on,off" default:""`
	MQTTBroker     string `name:"mqtt-broker" help:"MQTT broker URL, or 'none' to disable."`
	MQTTTopic      string `name:"mqtt-topic" help:"MQTT topic for completion events."`
	MQTTClientID   string `name:"mqtt-client-id" help:"MQTT client id."`
}

func onOff(v string, current bool) bool {
	switch v {
	case "on":
		return true
	case "off":
		return false
	default:
		return current
	}
}

// apply returns s with the given flags applied and whether anything changed.
func (c *SettingsCmd) apply(s models.Settings) (models.Settings, bool) {
	before := s
	if c.CameraURL != "" {
		s.CameraURL = c.CameraURL
	}
	if c.CameraWidth != 0 {
		s.CameraWidth = c.CameraWidth
	}
	if c.CameraHeight != 0 {
		s.CameraHeight = c.CameraHeight
	}
	if c.CameraFacing != "" {
		s.CameraFacing = c.CameraFacing
	}
	if c.AcquireTimeout != 0 {
		s.AcquireTimeoutSec = c.AcquireTimeout
	}
	if c.Timezone != "" {
		s.Timezone = c.Timezone
	}
	s.NotificationsEnabled = onOff(c.Notifications, s.NotificationsEnabled)
	s.TrayEnabled = onOff(c.Tray, s.TrayEnabled)
	switch c.MQTTBroker {
	case "":
	case "none":
		s.MQTTBroker = ""
	default:
		s.MQTTBroker = c.MQTTBroker
	}
	if c.MQTTTopic != "" {
		s.MQTTTopic = c.MQTTTopic
	}
	if c.MQTTClientID != "" {
		s.MQTTClientID = c.MQTTClientID
	}
	return s, s != before
}

func (c *SettingsCmd) Run(ctx *Context) error {
	current, err := storage.GetSettings(ctx.Store)
	if err != nil {
		return err
	}

	next, changed := c.apply(current)
	if changed {
		result := validation.ValidateSettings(next)
		if err := result.Err(); err != nil {
			return err
		}
		if err := storage.SaveSettings(ctx.Store, next); err != nil {
			return err
		}
		fmt.Println("✓ Settings updated")
		fmt.Println()
	}

	printSettings(next)
	if ctx.Config.MQTTBroker != "" {
		fmt.Printf("\nMQTT broker overridden by environment: %s\n", ctx.Config.MQTTBroker)
	}
	return nil
}

func printSettings(s models.Settings) {
	onOffLabel := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	broker := s.MQTTBroker
	if broker == "" {
		broker = "(disabled)"
	}
	fmt.Println("Camera")
	fmt.Printf("  URL:             %s\n", s.CameraURL)
	fmt.Printf("  Resolution:      %dx%d\n", s.CameraWidth, s.CameraHeight)
	fmt.Printf("  Facing:          %s\n", s.CameraFacing)
	fmt.Printf("  Acquire timeout: %s\n", s.AcquireTimeout())
	fmt.Println("Time")
	fmt.Printf("  Timezone:        %s\n", s.Timezone)
	fmt.Println("Notifications")
	fmt.Printf("  Enabled:         %s\n", onOffLabel(s.NotificationsEnabled))
	fmt.Printf("  Tray bridge:     %s\n", onOffLabel(s.TrayEnabled))
	fmt.Printf("  MQTT broker:     %s\n", broker)
	fmt.Printf("  MQTT topic:      %s\n", s.MQTTTopic)
	fmt.Printf("  MQTT client id:  %s\n", s.MQTTClientID)
}
