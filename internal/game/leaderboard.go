package game

import (
	"math"
	"sort"

	"quizshow-service/internal/domain"
)

// Aggregate reduces the full response table into ranked standings. It is
// order-independent over the responses (summation and counting only) and runs
// once, when the session finishes. Players who never answered appear with zero
// totals. Ordering is deterministic: total score descending, ties broken by
// earlier join time, then by player ID.
func Aggregate(players map[string]domain.Player, responses map[int]map[string]domain.Response) []domain.Standing {
	totals := make(map[string]*domain.Standing, len(players))
	for id, p := range players {
		totals[id] = &domain.Standing{PlayerID: id, DisplayName: p.Name}
	}

	for _, byPlayer := range responses {
		for id, resp := range byPlayer {
			row, ok := totals[id]
			if !ok {
				// Response from a player missing in the roster; keep the row
				// so points are never silently dropped.
				row = &domain.Standing{PlayerID: id}
				totals[id] = row
			}
			row.TotalScore += resp.PointDelta
			row.TotalAnswered++
			if resp.Correct {
				row.CorrectCount++
			}
		}
	}

	standings := make([]domain.Standing, 0, len(totals))
	for _, row := range totals {
		if row.TotalAnswered > 0 {
			row.AccuracyPercent = int(math.Round(100 * float64(row.CorrectCount) / float64(row.TotalAnswered)))
		}
		standings = append(standings, *row)
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].TotalScore != standings[j].TotalScore {
			return standings[i].TotalScore > standings[j].TotalScore
		}
		pi, iKnown := players[standings[i].PlayerID]
		pj, jKnown := players[standings[j].PlayerID]
		if iKnown && jKnown && !pi.JoinedAt.Equal(pj.JoinedAt) {
			return pi.JoinedAt.Before(pj.JoinedAt)
		}
		return standings[i].PlayerID < standings[j].PlayerID
	})

	return standings
}
