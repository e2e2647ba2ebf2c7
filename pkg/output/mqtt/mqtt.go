package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/output"
	"github.com/ericogr/thermistor-to-mqtt/pkg/probe"
)

const (
	DefaultConnectRetry = 5 * time.Second
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitCelsius            = "°C"
	deviceClassTemperature = "temperature"
	stateClassMeasurement  = "measurement"
)

// MQTTOutput publishes each cycle as {"<probe>": <celsius>, ...} on one topic.
// When the topic contains %s, each probe instead gets its own topic with a
// {"celsius": ..., "raw": ...} payload. Faulted probes are left out.
type MQTTOutput struct {
	client   mqtt.Client
	topic    string
	retained bool
}

// NewMQTT connects to the broker, retrying at a fixed interval until the
// first connection succeeds or ctx is done, and keeps reconnecting afterwards.
func NewMQTT(ctx context.Context, cfg config.MQTTConfig, probes []probe.Probe) (output.Output, error) {
	retry := DefaultConnectRetry
	if cfg.ConnectRetryMs > 0 {
		retry = time.Duration(cfg.ConnectRetryMs) * time.Millisecond
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retry)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("mqtt connected to %s", cfg.Server)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt connection to %s lost: %v", cfg.Server, err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Printf("mqtt reconnecting to %s", cfg.Server)
	})

	client := mqtt.NewClient(opts)
	if err := connect(ctx, client); err != nil {
		return nil, err
	}
	return newMQTTOutput(client, cfg, probes), nil
}

// connect waits for the first connection. With connect retry enabled the
// token only completes once the broker accepts us, so ctx bounds the wait.
func connect(ctx context.Context, client mqtt.Client) error {
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		// Disconnect aborts the retry loop but waits for a pending dial
		go client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
}

func newMQTTOutput(client mqtt.Client, cfg config.MQTTConfig, probes []probe.Probe) *MQTTOutput {
	topic := cfg.Topic
	if topic == "" {
		topic = config.DefaultTopic
	}
	m := &MQTTOutput{client: client, topic: topic, retained: cfg.Retained}

	// Home Assistant discovery, one retained entry per probe
	if cfg.DiscoveryTopic != "" {
		for _, p := range probes {
			dTopic := discoveryTopic(cfg.DiscoveryTopic, p.Name)
			stateTopic, tmpl := m.stateTopic(p.Name)
			payload := baseDiscoveryPayload(discoveryName(cfg, p.Name), stateTopic, tmpl, discoveryUniqueID(cfg, p.Name))
			if err := publishJSON(client, dTopic, true, payload); err != nil {
				log.Printf("mqtt discovery publish error: %v", err)
			}
		}
	}
	return m
}

func (m *MQTTOutput) perProbe() bool {
	return strings.Contains(m.topic, "%s")
}

// stateTopic returns where a probe's temperature lands and the template that
// extracts it from the payload.
func (m *MQTTOutput) stateTopic(name string) (string, string) {
	if m.perProbe() {
		return fmt.Sprintf(m.topic, name), "{{ value_json.celsius }}"
	}
	return m.topic, fmt.Sprintf("{{ value_json[%q] }}", name)
}

func (m *MQTTOutput) Publish(readings []probe.Reading) error {
	if m.perProbe() {
		for _, r := range readings {
			if !r.OK() {
				continue
			}
			topic, _ := m.stateTopic(r.Probe)
			payload := map[string]interface{}{"celsius": r.Celsius, "raw": r.Raw}
			if err := publishJSON(m.client, topic, m.retained, payload); err != nil {
				return err
			}
		}
		return nil
	}

	temps := probe.Temperatures(readings)
	if len(temps) == 0 {
		// every probe faulted; nothing worth publishing this cycle
		return nil
	}
	b, err := json.Marshal(temps)
	if err != nil {
		return err
	}
	return m.PublishRaw(m.topic, b, m.retained)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: discovery topic for a probe; base may carry a %s for the probe name
func discoveryTopic(base, name string) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, name)
	}
	return strings.TrimSuffix(base, "/") + "/" + name + "/config"
}

func discoveryName(cfg config.MQTTConfig, name string) string {
	prefix := cfg.DiscoveryName
	if prefix == "" {
		prefix = "Thermistor"
	}
	return fmt.Sprintf("%s %s", prefix, name)
}

func discoveryUniqueID(cfg config.MQTTConfig, name string) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", uid, name)
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, valueTemplate, uniqueID string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitCelsius,
		keyDeviceClass:         deviceClassTemperature,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplate,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
