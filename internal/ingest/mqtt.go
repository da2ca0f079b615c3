package ingest

import (
	"encoding/json"
	"log"
	"time"

	"backend-tripoverlay/internal/engine"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSource subscribes to a location topic and feeds each message into the
// engine. It is optional; trackers that cannot reach the HTTP ingest API
// (phone battery savers, embedded units) publish over MQTT instead.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	eng    *engine.Engine
	nowFn  func() time.Time
}

// NewMQTTSource returns nil when brokerURL is empty, which disables the
// MQTT path entirely.
func NewMQTTSource(brokerURL, topic, overlayID string, eng *engine.Engine) *MQTTSource {
	if brokerURL == "" {
		return nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("tripoverlay-" + overlayID).
		SetAutoReconnect(true)

	return &MQTTSource{
		client: mqtt.NewClient(opts),
		topic:  topic,
		eng:    eng,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MQTTSource) Start() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	token := s.client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("ingest: subscribed to mqtt topic %s", s.topic)
	return nil
}

// handleMessage accepts the same JSON body as POST /ingest/location.
func (s *MQTTSource) handleMessage(payload []byte) {
	var req LocationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("ingest: dropping mqtt message: %v", err)
		return
	}
	s.eng.Process(req.sample(s.nowFn()))
}

func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}
