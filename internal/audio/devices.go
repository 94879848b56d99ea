// Package audio discovers Pulse input sources and streams float32 capture chunks.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const applicationName = "parley"

// ErrPermissionDenied covers every way the microphone can be refused: no
// server, no matching source, a muted or unplugged device.
var ErrPermissionDenied = errors.New("microphone access denied")

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Usable reports whether capture from the device would produce audio.
func (d Device) Usable() bool {
	return d.Available && !d.Muted
}

// Policy holds the configured input preference and its fallback. Empty or
// "default" means the server default source.
type Policy struct {
	Input    string
	Fallback string
}

func (p Policy) normalized() Policy {
	return Policy{
		Input:    normalizeTerm(p.Input),
		Fallback: normalizeTerm(p.Fallback),
	}
}

func normalizeTerm(term string) string {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "default" {
		return ""
	}
	return term
}

// Selection is the resolved capture source plus fallback context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrPermissionDenied, err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default and availability flags.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return devicesFromInfo(infos, defaultSource.ID()), nil
}

func devicesFromInfo(infos pulseproto.GetSourceInfoListReply, defaultID string) []Device {
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultID,
		})
	}
	return devices
}

// SelectDevice resolves policy against the live device list.
func SelectDevice(ctx context.Context, policy Policy) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return choose(devices, policy)
}

// choose applies the selection policy. Every failure wraps ErrPermissionDenied.
func choose(devices []Device, policy Policy) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, fmt.Errorf("%w: no audio input devices found", ErrPermissionDenied)
	}
	policy = policy.normalized()

	primary, err := find(devices, policy.Input, "audio.input")
	if err != nil {
		return Selection{}, err
	}
	if primary.Usable() {
		return Selection{Device: primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	fallback, err := find(devices, policy.Fallback, "audio.fallback")
	if err != nil {
		return Selection{}, fmt.Errorf("%w: input %q is %s and no usable fallback: %v", ErrPermissionDenied, primary.ID, reason, err)
	}
	switch {
	case !fallback.Available:
		return Selection{}, fmt.Errorf("%w: fallback device %q is not available", ErrPermissionDenied, fallback.ID)
	case fallback.Muted:
		return Selection{}, fmt.Errorf("%w: fallback device %q is muted", ErrPermissionDenied, fallback.ID)
	}

	return Selection{
		Device:   fallback,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, fallback.ID),
		Fallback: primary.ID != fallback.ID,
	}, nil
}

// find returns the default device for an empty term, else the first match.
func find(devices []Device, term, field string) (Device, error) {
	for _, dev := range devices {
		if term == "" && dev.Default {
			return dev, nil
		}
		if term != "" && deviceMatches(dev, term) {
			return dev, nil
		}
	}
	if term == "" {
		return Device{}, fmt.Errorf("%w: default audio source is unavailable", ErrPermissionDenied)
	}
	return Device{}, fmt.Errorf("%w: %s %q did not match any device", ErrPermissionDenied, field, term)
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable reports whether the active port can deliver audio.
func sourceAvailable(info *pulseproto.GetSourceInfoReply) bool {
	if info == nil {
		return false
	}
	for _, port := range info.Ports {
		if port.Name == info.ActivePortName {
			// unknown=0, no=1, yes=2
			return port.Available != 1
		}
	}
	return true
}
