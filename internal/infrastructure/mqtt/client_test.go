package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/device-orchestra/internal/infrastructure/config"
)

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status default root", Topics{}.SystemStatus(), "orchestra/system/status"},
		{"event", Topics{Root: "lab"}.Event("fake_cam", "device.data"), "lab/event/fake_cam/device.data"},
		{"event sanitised", Topics{}.Event("rig/1", "a+b#"), "orchestra/event/rig_1/a_b_"},
		{"event empty source", Topics{}.Event("", "pipeline.started"), "orchestra/event/_/pipeline.started"},
		{"device state", Topics{}.DeviceState("motor-1"), "orchestra/device/motor-1/state"},
		{"all events", Topics{}.AllEvents(), "orchestra/event/#"},
		{"all device states", Topics{}.AllDeviceStates(), "orchestra/device/+/state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestValidatePublish(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"ok", "orchestra/event/a/b", []byte("{}"), 1, nil},
		{"nil payload ok", "orchestra/event/a/b", nil, 0, nil},
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"wildcard topic", "orchestra/event/#", nil, 0, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"oversized", "t", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePublish(tt.topic, tt.payload, tt.qos)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validatePublish() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validatePublish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c := &Client{}
	if err := c.Publish("orchestra/event/a/b", []byte("{}"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	// Validation runs before the connection check.
	if err := c.Publish("", nil, 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:    config.MQTTBrokerConfig{Host: "broker.lab", Port: 8883, TLS: true, ClientID: "orchestra-bench"},
		Auth:      config.MQTTAuthConfig{Username: "bench", Password: "pw"},
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 2, MaxDelay: 30},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.lab:8883" {
		t.Errorf("Servers = %v, want ssl://broker.lab:8883", opts.Servers)
	}
	if opts.ClientID != "orchestra-bench" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bench" || opts.Password != "pw" {
		t.Error("credentials not applied")
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config not set")
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 30s", opts.MaxReconnectInterval)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var got statusPayload
	if err := json.Unmarshal(buildStatusPayload("offline", "orchestra", "graceful_shutdown", now), &got); err != nil {
		t.Fatal(err)
	}
	want := statusPayload{Status: "offline", ClientID: "orchestra", Reason: "graceful_shutdown", Timestamp: "2026-03-01T09:00:00Z"}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}

	online := string(buildStatusPayload("online", "orchestra", "", now))
	if strings.Contains(online, "reason") {
		t.Errorf("online payload should omit reason: %s", online)
	}
}
