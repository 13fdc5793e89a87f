package service

import (
	"fmt"
	"strings"

	"wow-tracker/internal/constants"
	"wow-tracker/internal/domain"
)

const (
	DigestVariantStandings   = "standings"
	DigestVariantPollFailure = "poll_failure"
)

// DigestPollSummary is the poll outcome echoed in the digest header. Counts
// are pointers because older job details may not carry them.
type DigestPollSummary struct {
	Status       domain.JobStatus `json:"status"`
	WarningCount *int             `json:"warningCount,omitempty"`
	ErrorCount   *int             `json:"errorCount,omitempty"`
}

type digestRow struct {
	Rank          int // 0 means unranked
	CharacterName string
	Region        domain.Region
	RealmSlug     string
	TotalScore    float64
	DailyDelta    float64
}

type digestMilestone struct {
	Rank          int
	CharacterName string
	Region        domain.Region
	RealmSlug     string
	DailyDelta    float64
	Text          string
}

type digestData struct {
	Variant        string
	SnapshotDate   string
	PollJobRunID   string
	PollSummary    DigestPollSummary
	FailureMessage string
	ProfileName    string
	ProfileVersion int
	Rows           []digestRow
	TopMovers      []digestRow
	Milestones     []digestMilestone
	Warnings       []string
}

// formatDigest renders the plain-text Telegram message. Every section is
// capped and the whole message is truncated to the Telegram-safe limit.
func formatDigest(data *digestData, leagueName string) string {
	lines := []string{
		leagueName,
		fmt.Sprintf("Snapshot: %s (UTC)", data.SnapshotDate),
	}

	pollParts := []string{fmt.Sprintf("Poll: %s", data.PollSummary.Status)}
	if data.PollSummary.WarningCount != nil {
		pollParts = append(pollParts, fmt.Sprintf("warnings=%d", *data.PollSummary.WarningCount))
	}
	if data.PollSummary.ErrorCount != nil {
		pollParts = append(pollParts, fmt.Sprintf("errors=%d", *data.PollSummary.ErrorCount))
	}
	lines = append(lines, strings.Join(pollParts, " | "))

	if data.Variant == DigestVariantPollFailure {
		lines = append(lines, "", "Failure Summary", data.FailureMessage)
		return truncateMessage(strings.Join(lines, "\n"), constants.DigestMaxMessageLength)
	}

	lines = append(lines, fmt.Sprintf("Score Profile: %s v%d", data.ProfileName, data.ProfileVersion))

	rowLines := make([]string, 0, len(data.Rows))
	for _, row := range data.Rows {
		rowLines = append(rowLines, renderLeaderboardRow(row))
	}
	rowLines = withOverflowSuffix(rowLines, constants.DigestTopRowsLimit)
	if len(rowLines) == 0 {
		rowLines = []string{"No leaderboard rows found."}
	}
	lines = append(lines, "", "Top Leaderboard")
	lines = append(lines, rowLines...)

	moverLines := make([]string, 0, len(data.TopMovers))
	for _, row := range data.TopMovers {
		moverLines = append(moverLines, renderLeaderboardRow(row))
	}
	if moverLines = withOverflowSuffix(moverLines, constants.DigestTopMoversLimit); len(moverLines) > 0 {
		lines = append(lines, "", "Top Movers")
		lines = append(lines, moverLines...)
	}

	milestoneLines := make([]string, 0, len(data.Milestones))
	for _, milestone := range data.Milestones {
		milestoneLines = append(milestoneLines, renderMilestoneLine(milestone))
	}
	if milestoneLines = withOverflowSuffix(milestoneLines, constants.DigestMilestonesLimit); len(milestoneLines) > 0 {
		lines = append(lines, "", "Notable Milestones")
		lines = append(lines, milestoneLines...)
	}

	if warningLines := withOverflowSuffix(data.Warnings, constants.DigestWarningsLimit); len(warningLines) > 0 {
		lines = append(lines, "", "Warnings")
		lines = append(lines, warningLines...)
	}

	return truncateMessage(strings.Join(lines, "\n"), constants.DigestMaxMessageLength)
}

func renderLeaderboardRow(row digestRow) string {
	return fmt.Sprintf("%s. %s | Score %.2f | Δ %s",
		rankLabel(row.Rank), characterLabel(row.CharacterName, row.Region, row.RealmSlug),
		row.TotalScore, formatSigned(row.DailyDelta))
}

func renderMilestoneLine(line digestMilestone) string {
	return fmt.Sprintf("%s. %s | %s | score Δ %s",
		rankLabel(line.Rank), characterLabel(line.CharacterName, line.Region, line.RealmSlug),
		line.Text, formatSigned(line.DailyDelta))
}

func characterLabel(name string, region domain.Region, realmSlug string) string {
	return fmt.Sprintf("%s (%s/%s)", name, region, realmSlug)
}

func rankLabel(rank int) string {
	if rank == 0 {
		return "?"
	}
	return fmt.Sprintf("%d", rank)
}

func formatSigned(value float64) string {
	return fmt.Sprintf("%+.2f", value)
}

// withOverflowSuffix keeps the first limit lines and folds the rest into a
// "+N more" trailer.
func withOverflowSuffix(lines []string, limit int) []string {
	if len(lines) <= limit {
		return lines
	}
	visible := append([]string{}, lines[:limit]...)
	return append(visible, fmt.Sprintf("+%d more", len(lines)-limit))
}

// truncateMessage cuts the message at the limit, preferring the last line
// break past 60% of the limit so a section is not chopped mid-row.
func truncateMessage(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	cut := maxLength - 3
	if cut < 0 {
		cut = 0
	}
	slice := runes[:cut]
	newlineIndex := lastIndexRune(slice, '\n')
	if float64(newlineIndex) > float64(maxLength)*0.6 {
		return string(slice[:newlineIndex]) + "..."
	}
	return string(slice) + "..."
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
