package domain

import (
	"time"
)

type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
)

type Faction string

const (
	FactionHorde    Faction = "HORDE"
	FactionAlliance Faction = "ALLIANCE"
)

type JobType string

const (
	JobTypePoll               JobType = "POLL"
	JobTypeDigest             JobType = "DIGEST"
	JobTypeRebuildLeaderboard JobType = "REBUILD_LEADERBOARD"
)

type JobStatus string

const (
	JobStatusRunning        JobStatus = "RUNNING"
	JobStatusSuccess        JobStatus = "SUCCESS"
	JobStatusPartialFailure JobStatus = "PARTIAL_FAILURE"
	JobStatusFailed         JobStatus = "FAILED"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "PENDING"
	DeliveryStatusSent    DeliveryStatus = "SENT"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
)

const MessageTypeDailyDigest = "DAILY_DIGEST"

// TrackedCharacter is one roster entry. Identity key is
// (region, realm_slug, character_name_lower); characters removed from the
// roster config are soft-deleted via Active=false, never hard-deleted, so
// historical snapshots survive roster edits.
type TrackedCharacter struct {
	ID                 string
	Region             Region
	RealmSlug          string
	CharacterName      string
	CharacterNameLower string
	Faction            Faction
	Active             bool
	PortraitURL        string
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CharacterSnapshot is one normalized observation of one character on one
// UTC calendar day. Re-polling the same day overwrites in place.
type CharacterSnapshot struct {
	ID                 string
	TrackedCharacterID string
	SnapshotDate       time.Time
	PolledAt           time.Time
	RawProfileJSON     string
	RawProgressJSON    string
	NormalizedMetrics  NormalizedCharacterMetrics
	SourceVersion      int
	CreatedAt          time.Time
}

type ReputationMetric struct {
	FactionID int     `json:"factionId,omitempty"`
	Name      string  `json:"name,omitempty"`
	Progress  float64 `json:"progress"`
	RawValue  float64 `json:"rawValue,omitempty"`
	MaxValue  float64 `json:"maxValue,omitempty"`
}

type NormalizedCharacterMetrics struct {
	SchemaVersion            int                `json:"schemaVersion"`
	FetchedAt                time.Time          `json:"fetchedAt"`
	Region                   Region             `json:"region"`
	RealmSlug                string             `json:"realmSlug"`
	CharacterName            string             `json:"characterName"`
	Level                    float64            `json:"level"`
	AverageItemLevel         float64            `json:"averageItemLevel"`
	AchievementPoints        float64            `json:"achievementPoints"`
	StatisticsCompositeValue float64            `json:"statisticsCompositeValue"`
	CompletedQuestCount      float64            `json:"completedQuestCount"`
	ReputationProgressTotal  float64            `json:"reputationProgressTotal"`
	ReputationBreakdown      []ReputationMetric `json:"reputationBreakdown"`
	EncounterKillScore       float64            `json:"encounterKillScore"`
	EncounterIDsCompleted    []int              `json:"encounterIdsCompleted"`
	MythicPlusRunsCount      float64            `json:"mythicPlusRunsCount"`
	MythicPlusBestRunLevel   float64            `json:"mythicPlusBestRunLevel"`
	MythicPlusSeasonScore    float64            `json:"mythicPlusSeasonScore"`
	Warnings                 []string           `json:"warnings"`
}

type MetricDeltas struct {
	Level                    float64 `json:"level"`
	AverageItemLevel         float64 `json:"averageItemLevel"`
	AchievementPoints        float64 `json:"achievementPoints"`
	StatisticsCompositeValue float64 `json:"statisticsCompositeValue"`
	CompletedQuestCount      float64 `json:"completedQuestCount"`
	ReputationProgressTotal  float64 `json:"reputationProgressTotal"`
	EncounterKillScore       float64 `json:"encounterKillScore"`
	MythicPlusRunsCount      float64 `json:"mythicPlusRunsCount"`
	MythicPlusBestRunLevel   float64 `json:"mythicPlusBestRunLevel"`
	MythicPlusSeasonScore    float64 `json:"mythicPlusSeasonScore"`
}

// MetricDelta compares a snapshot against the previous one for the same
// character. FromFetchedAt is zero for a first-ever observation, whose
// baseline is all-zero.
type MetricDelta struct {
	FromFetchedAt time.Time    `json:"fromFetchedAt,omitzero"`
	ToFetchedAt   time.Time    `json:"toFetchedAt"`
	Deltas        MetricDeltas `json:"deltas"`
	Milestones    []string     `json:"milestones"`
}

type CharacterMetricDelta struct {
	ID                 string
	TrackedCharacterID string
	FromSnapshotID     string
	ToSnapshotID       string
	Deltas             MetricDeltas
	Milestones         []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ScoreWeights struct {
	Level                  float64 `json:"level"`
	ItemLevel              float64 `json:"itemLevel"`
	MythicPlusRating       float64 `json:"mythicPlusRating"`
	BestKey                float64 `json:"bestKey"`
	Quests                 float64 `json:"quests"`
	Reputations            float64 `json:"reputations"`
	Encounters             float64 `json:"encounters"`
	AchievementsStatistics float64 `json:"achievementsStatistics"`
}

// Total sums every category weight.
func (w ScoreWeights) Total() float64 {
	return w.Level + w.ItemLevel + w.MythicPlusRating + w.BestKey +
		w.Quests + w.Reputations + w.Encounters + w.AchievementsStatistics
}

type ScoreNormalizationCaps struct {
	Level                    float64 `json:"level"`
	CompletedQuestCount      float64 `json:"completedQuestCount"`
	ReputationProgressTotal  float64 `json:"reputationProgressTotal"`
	AverageItemLevel         float64 `json:"averageItemLevel"`
	EncounterKillScore       float64 `json:"encounterKillScore"`
	MythicPlusSeasonScore    float64 `json:"mythicPlusSeasonScore"`
	MythicPlusBestRunLevel   float64 `json:"mythicPlusBestRunLevel"`
	AchievementPoints        float64 `json:"achievementPoints"`
	StatisticsCompositeValue float64 `json:"statisticsCompositeValue"`
}

type ScoreFilters struct {
	QuestIDs        []int `json:"questIds"`
	FactionIDs      []int `json:"factionIds"`
	EncounterIDs    []int `json:"encounterIds"`
	MythicSeasonIDs []int `json:"mythicSeasonIds"`
	StatisticIDs    []int `json:"statisticIds"`
}

// ScoreProfileConfig is the weight/cap/filter document loaded from config.
type ScoreProfileConfig struct {
	Name              string                 `json:"name"`
	Version           int                    `json:"version"`
	Weights           ScoreWeights           `json:"weights"`
	NormalizationCaps ScoreNormalizationCaps `json:"normalizationCaps"`
	Filters           ScoreFilters           `json:"filters"`
}

// ScoreProfile is the persisted, content-addressed form of a
// ScoreProfileConfig. At most one profile is active at a time; activation is
// transactional (deactivate all others, activate one).
type ScoreProfile struct {
	ID                string
	Name              string
	Version           int
	SourceHash        string
	Weights           ScoreWeights
	NormalizationCaps ScoreNormalizationCaps
	Filters           ScoreFilters
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ScoreBreakdownCategories struct {
	Level                  float64 `json:"level"`
	ItemLevel              float64 `json:"itemLevel"`
	MythicPlusRating       float64 `json:"mythicPlusRating"`
	BestKey                float64 `json:"bestKey"`
	Quests                 float64 `json:"quests"`
	Reputations            float64 `json:"reputations"`
	Encounters             float64 `json:"encounters"`
	AchievementsStatistics float64 `json:"achievementsStatistics"`
}

type ScoreBreakdown struct {
	TotalScore            float64                  `json:"totalScore"`
	TotalWeight           float64                  `json:"totalWeight"`
	NormalizedCategories  ScoreBreakdownCategories `json:"normalizedCategories"`
	WeightedContributions ScoreBreakdownCategories `json:"weightedContributions"`
	Warnings              []string                 `json:"warnings"`
}

type LeaderboardScore struct {
	ID                 string
	TrackedCharacterID string
	SnapshotID         string
	ScoreProfileID     string
	TotalScore         float64
	DailyDelta         float64
	Rank               int // 0 means unranked
	BreakdownJSON      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type JobRun struct {
	ID           string
	JobType      JobType
	Status       JobStatus
	SnapshotDate time.Time // zero when the job has no snapshot scope
	StartedAt    time.Time
	FinishedAt   time.Time // zero until terminal
	DetailsJSON  string
}

// TelegramDelivery is the durable idempotency guard for digest delivery,
// unique per (chat, message type, delivery date).
type TelegramDelivery struct {
	ID                string
	JobRunID          string
	ChatID            string
	MessageType       string
	DeliveryDate      time.Time
	Status            DeliveryStatus
	MessageText       string
	TelegramMessageID string
	SentAt            time.Time
	ErrorJSON         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TrackedCharacterConfig is one roster entry as loaded from config.
type TrackedCharacterConfig struct {
	Region        Region  `json:"region"`
	RealmSlug     string  `json:"realmSlug"`
	CharacterName string  `json:"characterName"`
	Faction       Faction `json:"faction"`
	Active        *bool   `json:"active,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// IsActive resolves the optional active flag, defaulting to true.
func (c TrackedCharacterConfig) IsActive() bool {
	return c.Active == nil || *c.Active
}

type TrackedCharactersConfig struct {
	Version    int                      `json:"version"`
	Characters []TrackedCharacterConfig `json:"characters"`
}

// RawProgressBundle holds the independently-fetched provider sub-payloads for
// one character. Sub-fetch failures land in EndpointErrors instead of
// aborting the bundle.
type RawProgressBundle struct {
	FetchedAt             time.Time
	ProfileSummary        any
	CharacterMedia        any
	EquipmentSummary      any
	AchievementsSummary   any
	StatisticsSummary     any
	ReputationsSummary    any
	QuestsCompleted       any
	EncountersSummary     any
	MythicKeystoneProfile any
	MythicKeystoneSeason  any
	EndpointErrors        map[string]string
}

type PollCharacterResult struct {
	Character  TrackedCharacterConfig `json:"character"`
	OK         bool                   `json:"ok"`
	SnapshotID string                 `json:"snapshotId,omitempty"`
	Score      float64                `json:"score,omitempty"`
	Warnings   []string               `json:"warnings"`
	Error      string                 `json:"error,omitempty"`
}

type PollJobResult struct {
	SnapshotDate string                `json:"snapshotDate"`
	Processed    int                   `json:"processed"`
	SuccessCount int                   `json:"successCount"`
	WarningCount int                   `json:"warningCount"`
	ErrorCount   int                   `json:"errorCount"`
	Results      []PollCharacterResult `json:"results"`
}
