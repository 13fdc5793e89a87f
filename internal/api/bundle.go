package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wow-tracker/internal/domain"
)

// CharacterProvider fetches raw progress data for one tracked character.
// Tests swap in a fake; BlizzardClient is the real implementation.
type CharacterProvider interface {
	FetchProgressBundle(ctx context.Context, character domain.TrackedCharacterConfig, profile *domain.ScoreProfileConfig) (*domain.RawProgressBundle, error)
}

// FetchProgressBundle pulls every profile sub-endpoint for one character
// concurrently. Individual endpoint failures never fail the bundle; they are
// recorded per endpoint so the caller can decide what is fatal.
func (c *BlizzardClient) FetchProgressBundle(
	ctx context.Context,
	character domain.TrackedCharacterConfig,
	profile *domain.ScoreProfileConfig,
) (*domain.RawProgressBundle, error) {
	bundle := &domain.RawProgressBundle{
		FetchedAt:      time.Now().UTC(),
		EndpointErrors: map[string]string{},
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)

	fetchInto := func(name string, target *any, fetch func(ctx context.Context) (any, error)) {
		group.Go(func() error {
			data, err := fetch(groupCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bundle.EndpointErrors[name] = fmt.Sprintf("%s: %s", name, err.Error())
				return nil
			}
			*target = data
			return nil
		})
	}

	profilePath := func(suffix string) func(ctx context.Context) (any, error) {
		return func(ctx context.Context) (any, error) {
			return c.ProfileJSON(ctx, character.Region, CharacterPath(character, suffix))
		}
	}

	fetchInto("profileSummary", &bundle.ProfileSummary, profilePath(""))
	fetchInto("characterMedia", &bundle.CharacterMedia, profilePath("/character-media"))
	fetchInto("equipmentSummary", &bundle.EquipmentSummary, profilePath("/equipment"))
	fetchInto("achievementsSummary", &bundle.AchievementsSummary, profilePath("/achievements"))
	fetchInto("statisticsSummary", &bundle.StatisticsSummary, profilePath("/statistics"))
	fetchInto("reputationsSummary", &bundle.ReputationsSummary, profilePath("/reputations"))
	fetchInto("encountersSummary", &bundle.EncountersSummary, profilePath("/encounters"))
	fetchInto("mythicKeystoneProfile", &bundle.MythicKeystoneProfile, profilePath("/mythic-keystone-profile"))

	fetchInto("questsCompleted", &bundle.QuestsCompleted, func(ctx context.Context) (any, error) {
		data, err := c.ProfileJSON(ctx, character.Region, CharacterPath(character, "/quests/completed"))
		if IsNotFound(err) {
			// Some characters only expose the quest index endpoint.
			return c.ProfileJSON(ctx, character.Region, CharacterPath(character, "/quests"))
		}
		return data, err
	})

	if len(profile.Filters.MythicSeasonIDs) > 0 {
		seasonID := profile.Filters.MythicSeasonIDs[0]
		fetchInto("mythicKeystoneSeason", &bundle.MythicKeystoneSeason, func(ctx context.Context) (any, error) {
			suffix := fmt.Sprintf("/mythic-keystone-profile/season/%d", seasonID)
			return c.ProfileJSON(ctx, character.Region, CharacterPath(character, suffix))
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return bundle, nil
}
