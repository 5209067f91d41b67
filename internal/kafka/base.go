package kafka

import (
	"crypto/tls"

	"github.com/Shopify/sarama"
	"github.com/flexprice/couponengine/internal/config"
)

// GetSaramaConfig builds the sarama client configuration used by the ledger event producer
func GetSaramaConfig(cfg *config.Configuration) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_1_0_0
	saramaConfig.ClientID = cfg.Kafka.ClientID

	// ledger events must not be lost on producer retries
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true

	if cfg.Kafka.TLS {
		saramaConfig.Net.TLS.Enable = true
		saramaConfig.Net.TLS.Config = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	if !cfg.Kafka.UseSASL {
		return saramaConfig
	}

	saramaConfig.Net.SASL.Enable = true
	saramaConfig.Net.TLS.Enable = true
	saramaConfig.Net.SASL.Mechanism = sarama.SASLMechanism(cfg.Kafka.SASLMechanism)
	saramaConfig.Net.SASL.User = cfg.Kafka.SASLUser
	saramaConfig.Net.SASL.Password = cfg.Kafka.SASLPassword

	return saramaConfig
}
