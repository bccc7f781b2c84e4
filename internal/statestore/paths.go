package statestore

import (
	"fmt"
	"strconv"
	"strings"
)

// Path layout for one session document:
//
//	rooms/{code}/state                      phase + questionIndex + phaseEnteredAt (host is sole writer)
//	rooms/{code}/questions                  full question list, written once at create
//	rooms/{code}/players/{playerID}         one Player per join
//	rooms/{code}/responses/{q}/{playerID}   one Response, that player is sole writer
//	rooms/{code}/leaderboard                final standings, written once at finish
func StatePath(room string) string {
	return "rooms/" + room + "/state"
}

func QuestionsPath(room string) string {
	return "rooms/" + room + "/questions"
}

func PlayersPrefix(room string) string {
	return "rooms/" + room + "/players/"
}

func PlayerPath(room, playerID string) string {
	return PlayersPrefix(room) + playerID
}

func ResponsesPrefix(room string) string {
	return "rooms/" + room + "/responses/"
}

func ResponsePath(room string, question int, playerID string) string {
	return fmt.Sprintf("rooms/%s/responses/%d/%s", room, question, playerID)
}

func LeaderboardPath(room string) string {
	return "rooms/" + room + "/leaderboard"
}

// SplitResponsePath recovers (question, playerID) from a response path.
// Returns ok=false for paths outside the responses subtree.
func SplitResponsePath(room, path string) (question int, playerID string, ok bool) {
	rest, found := strings.CutPrefix(path, ResponsesPrefix(room))
	if !found {
		return 0, "", false
	}
	q, playerID, found := strings.Cut(rest, "/")
	if !found || playerID == "" {
		return 0, "", false
	}
	question, err := strconv.Atoi(q)
	if err != nil {
		return 0, "", false
	}
	return question, playerID, true
}
