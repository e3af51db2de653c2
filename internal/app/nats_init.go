package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	natsmsg "github.com/vladislavdragonenkov/warehouse/internal/messaging/nats"
)

// initNATS подключается к JetStream, если задан URL. Ошибка не фатальна:
// сервис продолжает публиковать события в лог.
func initNATS(ctx context.Context, url string, logger *log.Entry) (*natsmsg.Client, error) {
	if url == "" {
		return nil, nil
	}

	client, err := natsmsg.Connect(ctx, url, logger.WithField("component", "nats"))
	if err != nil {
		logger.WithError(err).Warn("failed to connect to nats, continuing without jetstream")
		return nil, err
	}

	logger.WithField("url", url).Info("nats jetstream publisher initialized")
	return client, nil
}

func closeNATS(client *natsmsg.Client, logger *log.Entry) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Warn("failed to drain nats connection")
	}
}
