package snapshot

import (
	"sort"
	"strings"

	"wow-tracker/internal/domain"
	"wow-tracker/internal/jsonval"
)

// SchemaVersion tags every normalized metrics record.
const SchemaVersion = 1

// The provider schema drifts across characters and patches. Extraction never
// trusts a field's shape: each metric checks a fixed priority list of
// historical field names, and structural walks are bounded by these limits.
const (
	// statisticsWalkLimit caps the crude fallback that sums every numeric
	// leaf of the statistics payload when no statistic-ID filter is set.
	statisticsWalkLimit = 200

	// encounterWalkMaxDepth bounds the recursive encounter payload walk.
	encounterWalkMaxDepth = 8
)

// Normalize converts a raw progress bundle into a fixed-shape metrics record.
// It never fails: absent or malformed fields degrade to zero or an empty
// collection, and every sub-fetch failure becomes a warning string.
func Normalize(
	bundle *domain.RawProgressBundle,
	character domain.TrackedCharacterConfig,
	profile *domain.ScoreProfileConfig,
) domain.NormalizedCharacterMetrics {
	warnings := endpointWarnings(bundle.EndpointErrors)

	repBreakdown, repTotal := extractReputations(bundle.ReputationsSummary, profile.Filters.FactionIDs)
	killScore, encounterIDs := extractEncounters(bundle.EncountersSummary, profile.Filters.EncounterIDs)
	bestRun, runsCount, seasonScore := extractMythicPlus(bundle.MythicKeystoneProfile, bundle.MythicKeystoneSeason)

	return domain.NormalizedCharacterMetrics{
		SchemaVersion:            SchemaVersion,
		FetchedAt:                bundle.FetchedAt,
		Region:                   character.Region,
		RealmSlug:                character.RealmSlug,
		CharacterName:            character.CharacterName,
		Level:                    extractLevel(bundle.ProfileSummary),
		AverageItemLevel:         extractAverageItemLevel(bundle.EquipmentSummary),
		AchievementPoints:        extractAchievementPoints(bundle.AchievementsSummary),
		StatisticsCompositeValue: extractStatisticsComposite(bundle.StatisticsSummary, profile.Filters.StatisticIDs),
		CompletedQuestCount:      extractCompletedQuestCount(bundle.QuestsCompleted),
		ReputationProgressTotal:  repTotal,
		ReputationBreakdown:      repBreakdown,
		EncounterKillScore:       killScore,
		EncounterIDsCompleted:    encounterIDs,
		MythicPlusRunsCount:      runsCount,
		MythicPlusBestRunLevel:   bestRun,
		MythicPlusSeasonScore:    seasonScore,
		Warnings:                 warnings,
	}
}

func endpointWarnings(endpointErrors map[string]string) []string {
	warnings := []string{}
	for _, name := range sortedStringKeys(endpointErrors) {
		if msg := endpointErrors[name]; msg != "" {
			warnings = append(warnings, msg)
		}
	}
	return warnings
}

func extractLevel(profileSummary any) float64 {
	p := jsonval.Record(profileSummary)
	if p == nil {
		return 0
	}
	n, _ := jsonval.FirstNumber(p["level"], p["character_level"], p["effective_level"])
	return n
}

func extractCompletedQuestCount(questsPayload any) float64 {
	q := jsonval.Record(questsPayload)
	if q == nil {
		return 0
	}
	if n, ok := jsonval.FirstNumber(q["total_quests"], q["completed_quests"], q["total_completed"]); ok {
		return n
	}
	return float64(len(jsonval.Array(q["quests"])))
}

func extractAverageItemLevel(equipmentPayload any) float64 {
	eq := jsonval.Record(equipmentPayload)
	if eq == nil {
		return 0
	}

	averageObj := jsonval.Record(eq["average_item_level"])
	if averageObj == nil {
		averageObj = jsonval.Record(eq["averageItemLevel"])
	}
	equippedObj := jsonval.Record(eq["equipped_item_level"])
	if equippedObj == nil {
		equippedObj = jsonval.Record(eq["equippedItemLevel"])
	}

	direct, ok := jsonval.FirstNumber(
		eq["average_item_level"],
		eq["equipped_item_level"],
		eq["averageItemLevel"],
		eq["equippedItemLevel"],
		recordValue(averageObj),
		recordValue(equippedObj),
	)
	if ok && direct != 0 {
		return direct
	}

	items := jsonval.Array(eq["equipped_items"])
	if len(items) == 0 {
		items = jsonval.Array(eq["equippedItems"])
	}
	if len(items) == 0 {
		return 0
	}

	var total float64
	var count int
	for _, item := range items {
		itemRecord := jsonval.Record(item)
		if itemRecord == nil {
			continue
		}
		levelRecord := jsonval.Record(itemRecord["level"])
		if levelRecord == nil {
			levelRecord = jsonval.Record(itemRecord["item_level"])
		}
		var displayValue any
		if levelRecord != nil {
			displayValue = recordValue(jsonval.Record(levelRecord["display_string"]))
		}
		level, ok := jsonval.FirstNumber(
			itemRecord["level"],
			itemRecord["item_level"],
			recordValue(levelRecord),
			displayValue,
		)
		if ok {
			total += level
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func extractAchievementPoints(achievementsPayload any) float64 {
	a := jsonval.Record(achievementsPayload)
	if a == nil {
		return 0
	}
	n, _ := jsonval.FirstNumber(a["total_points"], a["totalPoints"], a["points"])
	return n
}

func extractStatisticsComposite(statisticsPayload any, statisticIDs []int) float64 {
	if statisticsPayload == nil {
		return 0
	}

	if len(statisticIDs) == 0 {
		// Crude fallback when no curated ID list exists: sum the first
		// statisticsWalkLimit non-negative numeric leaves.
		var total float64
		for _, n := range jsonval.CollectNumbers(statisticsPayload, statisticsWalkLimit) {
			if n > 0 {
				total += n
			}
		}
		return total
	}

	allowed := intSet(statisticIDs)
	var total float64
	var walk func(node any)
	walk = func(node any) {
		if array, ok := node.([]any); ok {
			for _, child := range array {
				walk(child)
			}
			return
		}
		record := jsonval.Record(node)
		if record == nil {
			return
		}
		if id, ok := jsonval.Number(record["id"]); ok {
			if _, match := allowed[int(id)]; match {
				total += jsonval.NumberOr(record["quantity"], jsonval.NumberOr(record["value"], 0))
			}
		}
		for _, key := range jsonval.SortedKeys(record) {
			walk(record[key])
		}
	}
	walk(statisticsPayload)
	return total
}

func extractReputations(reputationsPayload any, factionIDs []int) ([]domain.ReputationMetric, float64) {
	rep := jsonval.Record(reputationsPayload)
	allowed := intSet(factionIDs)

	breakdown := []domain.ReputationMetric{}
	var total float64
	for _, entry := range jsonval.Array(rep["reputations"]) {
		record := jsonval.Record(entry)
		if record == nil {
			continue
		}
		faction := jsonval.Record(record["faction"])
		standing := jsonval.Record(record["standing"])

		factionID, hasFactionID := jsonval.Number(faction["id"])
		if len(allowed) > 0 && hasFactionID {
			if _, match := allowed[int(factionID)]; !match {
				continue
			}
		}

		rawValue, _ := jsonval.FirstNumber(standing["raw"], standing["value"], record["raw"], record["value"])
		maxValue, _ := jsonval.FirstNumber(standing["max"], standing["max_value"], record["max"])

		var progress float64
		if maxValue > 0 {
			progress = clamp(rawValue, 0, maxValue)
		} else {
			progress = max(0, rawValue)
		}

		metric := domain.ReputationMetric{
			Name:     jsonval.String(faction["name"]),
			Progress: progress,
			RawValue: rawValue,
			MaxValue: maxValue,
		}
		if hasFactionID {
			metric.FactionID = int(factionID)
		}
		breakdown = append(breakdown, metric)
		total += progress
	}
	return breakdown, total
}

func extractEncounters(encountersPayload any, encounterIDs []int) (float64, []int) {
	allowed := intSet(encounterIDs)
	completed := map[int]struct{}{}
	var completedOrder []int
	var killScore float64

	var visit func(node any, depth int)
	visit = func(node any, depth int) {
		if depth > encounterWalkMaxDepth {
			return
		}
		if array, ok := node.([]any); ok {
			for _, child := range array {
				visit(child, depth+1)
			}
			return
		}
		record := jsonval.Record(node)
		if record == nil {
			return
		}

		encounter := jsonval.Record(record["encounter"])
		encounterID, hasID := jsonval.Number(record["id"])
		if !hasID {
			encounterID, hasID = jsonval.Number(encounter["id"])
		}

		completedCount, hasCount := jsonval.FirstNumber(
			record["completed_count"],
			record["completedCount"],
			record["count"],
			record["kills"],
			record["total_count"],
		)
		// An explicit JSON null is not a kill signal.
		hasLastKill := record["last_kill_timestamp"] != nil || record["lastKillTimestamp"] != nil

		if hasID && (hasCount || hasLastKill) {
			id := int(encounterID)
			_, match := allowed[id]
			if len(allowed) == 0 || match {
				if _, seen := completed[id]; !seen {
					completed[id] = struct{}{}
					completedOrder = append(completedOrder, id)
				}
				killScore += max(1, orDefault(completedCount, hasCount, 1))
			}
		}

		for _, key := range jsonval.SortedKeys(record) {
			switch record[key].(type) {
			case map[string]any, []any:
				visit(record[key], depth+1)
			}
		}
	}

	visit(encountersPayload, 0)
	return killScore, completedOrder
}

func extractMythicPlus(profilePayload, seasonPayload any) (bestRunLevel, runsCount, seasonScore float64) {
	for _, payload := range []any{profilePayload, seasonPayload} {
		record := jsonval.Record(payload)
		if record == nil {
			continue
		}

		currentRating := jsonval.Record(record["current_mythic_rating"])
		rating, _ := jsonval.FirstNumber(
			currentRating["rating"],
			record["current_mythic_rating_rating"],
			record["mythic_rating"],
		)
		seasonScore = max(seasonScore, rating)

		var allRuns []any
		allRuns = append(allRuns, jsonval.Array(record["best_runs"])...)
		allRuns = append(allRuns, jsonval.Array(record["current_period_best_runs"])...)
		allRuns = append(allRuns, jsonval.Array(record["season_best_runs"])...)
		allRuns = append(allRuns, jsonval.Array(record["best_keystone_runs"])...)
		runsCount += float64(len(allRuns))

		for _, run := range allRuns {
			runRecord := jsonval.Record(run)
			level, _ := jsonval.FirstNumber(runRecord["keystone_level"], runRecord["level"])
			bestRunLevel = max(bestRunLevel, level)
		}
	}
	return bestRunLevel, runsCount, seasonScore
}

// ExtractPortraitURL pulls a portrait URL out of a character-media payload,
// preferring avatar-style assets.
func ExtractPortraitURL(characterMedia any) string {
	media := jsonval.Record(characterMedia)
	if media == nil {
		return ""
	}

	urlsByKey := map[string]string{}
	for _, assetValue := range jsonval.Array(media["assets"]) {
		asset := jsonval.Record(assetValue)
		if asset == nil {
			continue
		}
		key := strings.TrimSpace(jsonval.String(asset["key"]))
		if key == "" {
			continue
		}

		valueRecord := jsonval.Record(asset["value"])
		hrefRecord := jsonval.Record(asset["href"])
		url := firstNonBlank(
			jsonval.String(asset["value"]),
			jsonval.String(asset["url"]),
			jsonval.String(valueRecord["href"]),
			jsonval.String(valueRecord["url"]),
			jsonval.String(hrefRecord["href"]),
			jsonval.String(hrefRecord["url"]),
		)
		if url == "" {
			continue
		}
		urlsByKey[strings.ToLower(key)] = url
	}

	preferredKeys := []string{
		"avatar", "avatar-raw", "avatar-large", "avatar-medium",
		"avatar-small", "inset", "main", "main-raw",
	}
	for _, key := range preferredKeys {
		if url, ok := urlsByKey[key]; ok {
			return url
		}
	}

	for _, key := range sortedStringKeys(urlsByKey) {
		if strings.HasPrefix(key, "avatar") {
			return urlsByKey[key]
		}
	}
	for _, key := range sortedStringKeys(urlsByKey) {
		return urlsByKey[key]
	}
	return ""
}

func recordValue(record map[string]any) any {
	if record == nil {
		return nil
	}
	return record["value"]
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func orDefault(value float64, ok bool, fallback float64) float64 {
	if ok {
		return value
	}
	return fallback
}

func clamp(value, lo, hi float64) float64 {
	return max(lo, min(hi, value))
}

func sortedStringKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
