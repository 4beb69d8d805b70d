package script

import (
	"fmt"
	"strings"
)

// ReviewIssue describes a quality problem found in a segmented transcript.
// Issues are advisory; nothing blocks synthesis on them.
type ReviewIssue struct {
	Category string // "speakers", "balance", "length", "filler"
	Message  string
}

const (
	minSpeakerShare    = 0.20
	maxUtteranceWords  = 400
	fillerWarnSegments = 5
)

// Review runs heuristic checks over a segmentation.
func Review(seg Segmentation) []ReviewIssue {
	if seg.Empty() {
		return nil
	}
	var issues []ReviewIssue
	issues = append(issues, checkSpeakers(seg)...)
	issues = append(issues, checkLongTurns(seg)...)
	issues = append(issues, checkFillerPhrases(seg)...)
	return issues
}

func checkSpeakers(seg Segmentation) []ReviewIssue {
	if seg.Tier != LabelDelimited {
		return []ReviewIssue{{
			Category: "speakers",
			Message:  fmt.Sprintf("no speaker labels found, %s produced %d single-voice utterances", seg.Tier, len(seg.Utterances)),
		}}
	}

	counts := map[Speaker]int{}
	for _, u := range seg.Utterances {
		counts[u.Speaker]++
	}
	total := len(seg.Utterances)

	var issues []ReviewIssue
	for _, sp := range []Speaker{Host, Expert} {
		share := float64(counts[sp]) / float64(total)
		if share < minSpeakerShare {
			issues = append(issues, ReviewIssue{
				Category: "balance",
				Message:  fmt.Sprintf("%s has only %.0f%% of turns (%d/%d)", sp, share*100, counts[sp], total),
			})
		}
	}
	return issues
}

func checkLongTurns(seg Segmentation) []ReviewIssue {
	var issues []ReviewIssue
	for i, u := range seg.Utterances {
		if n := WordCount(u.Text); n > maxUtteranceWords {
			issues = append(issues, ReviewIssue{
				Category: "length",
				Message:  fmt.Sprintf("utterance %d (%s) runs %d words", i, u.Speaker, n),
			})
		}
	}
	return issues
}

// bannedPhrases are sycophantic fillers that make two-voice scripts drag.
var bannedPhrases = []string{
	"that's a great point",
	"that's fascinating",
	"i love that",
	"you nailed it",
	"that's so interesting",
	"great question",
	"that's a really good question",
	"i couldn't agree more",
	"you're so right",
	"that's spot on",
	"couldn't have said it better",
	"you hit the nail on the head",
	"that's exactly right",
}

func checkFillerPhrases(seg Segmentation) []ReviewIssue {
	fillerCount := 0
	for _, u := range seg.Utterances {
		lower := strings.ToLower(u.Text)
		for _, phrase := range bannedPhrases {
			if strings.Contains(lower, phrase) {
				fillerCount++
				break
			}
		}
	}
	if fillerCount <= fillerWarnSegments {
		return nil
	}
	return []ReviewIssue{{
		Category: "filler",
		Message:  fmt.Sprintf("%d utterances contain filler praise", fillerCount),
	}}
}
