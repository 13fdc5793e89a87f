package fx

import (
	"go.uber.org/fx"

	"wow-tracker/internal/api"
	"wow-tracker/internal/config"
	"wow-tracker/internal/database"
	"wow-tracker/internal/logger"
	"wow-tracker/internal/repository"
	"wow-tracker/internal/server"
	"wow-tracker/internal/service"
)

func provideCharacterProvider(client *api.BlizzardClient) api.CharacterProvider {
	return client
}

func provideTelegramSender(client *api.TelegramClient) api.TelegramSender {
	return client
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewTrackedCharacterRepository),
	fx.Provide(repository.NewSnapshotRepository),
	fx.Provide(repository.NewMetricDeltaRepository),
	fx.Provide(repository.NewScoreProfileRepository),
	fx.Provide(repository.NewLeaderboardScoreRepository),
	fx.Provide(repository.NewJobRunRepository),
	fx.Provide(repository.NewTelegramDeliveryRepository),
	// api clients
	fx.Provide(api.NewBlizzardClient),
	fx.Provide(api.NewTelegramClient),
	fx.Provide(provideCharacterProvider),
	fx.Provide(provideTelegramSender),
	// svc
	fx.Provide(service.NewPollService),
	fx.Provide(service.NewDigestService),
	fx.Provide(service.NewRebuildService),
	fx.Provide(service.NewDailyService),
	fx.Provide(service.NewLeaderboardService),
	// server
	fx.Provide(server.NewTrackerServer),
)
