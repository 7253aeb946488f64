package fanout

import (
	"encoding/json"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

// Summary is the trimmed headline shape sent to non-client subscribers.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type insertFullPayload struct {
	News []domain.Headline `json:"news"`
	Type string            `json:"type"`
}

type insertSummaryPayload struct {
	News []Summary `json:"news"`
}

type updatePayload struct {
	News   []domain.Enhancement `json:"news"`
	Type   string               `json:"type"`
	Source string               `json:"source"`
}

// payloadFor builds the wire payload for one subscriber. The variant is a
// pure function of (mode, subscriber type): client subscribers get full
// headline objects on insert and the raw enhancement entries on update;
// everyone else gets id/title summaries.
func payloadFor(evt Event, sub domain.Subscriber) ([]byte, error) {
	switch {
	case evt.Mode == ModeUpdate:
		return json.Marshal(updatePayload{
			News:   evt.Entries,
			Type:   "update",
			Source: evt.SourceLanguage,
		})
	case sub.Type == domain.SubscriberTypeClient:
		return json.Marshal(insertFullPayload{
			News: evt.Headlines,
			Type: "insert",
		})
	default:
		summaries := make([]Summary, 0, len(evt.Headlines))
		for _, h := range evt.Headlines {
			summaries = append(summaries, Summary{ID: h.ID, Title: h.Title})
		}
		return json.Marshal(insertSummaryPayload{News: summaries})
	}
}
