package mq

import (
	"fmt"
	"strings"

	"github.com/sylvia-iot/broker-core/internal/errors"
)

// NewDialer returns a Pool dial function that builds an AMQP or MQTT
// transport based on hostURI's scheme. sharedPrefix is threaded through to
// MQTT transports for broadcast-queue subscriptions.
func NewDialer(sharedPrefix string) func(hostURI string) (Transport, error) {
	return func(hostURI string) (Transport, error) {
		switch {
		case strings.HasPrefix(hostURI, "amqp://"), strings.HasPrefix(hostURI, "amqps://"):
			return NewAMQPTransport(hostURI), nil
		case strings.HasPrefix(hostURI, "mqtt://"), strings.HasPrefix(hostURI, "mqtts://"), strings.HasPrefix(hostURI, "tcp://"), strings.HasPrefix(hostURI, "ssl://"):
			return NewMQTTTransport(hostURI, sharedPrefix), nil
		default:
			return nil, errors.NewValidation(errors.CodeParamInvalid, fmt.Sprintf("unsupported host_uri scheme: %s", hostURI))
		}
	}
}
