package alert

import (
	"context"
	"fmt"
	"strings"

	"sokol-alert/core/store"
)

// Compiler recomputes incident aggregates from the ledger. It never
// caches: every render is a fresh read so a refresh always reflects
// the most recently applied response.
type Compiler struct {
	subscribers store.SubscribersStore
	incidents   store.IncidentsStore
	responses   store.ResponsesStore
	lang        string
}

func NewCompiler(subscribers store.SubscribersStore, incidents store.IncidentsStore, responses store.ResponsesStore) *Compiler {
	return &Compiler{
		subscribers: subscribers,
		incidents:   incidents,
		responses:   responses,
		lang:        "ru",
	}
}

type RespondedEntry struct {
	Subscriber store.Subscriber     `json:"subscriber"`
	Status     store.ResponseStatus `json:"status"`
	Lat        *float64             `json:"lat,omitempty"`
	Lon        *float64             `json:"lon,omitempty"`
}

// FullReport partitions the current roster: every member is either in
// Responded or in Missed, never both. A member who joined after the
// broadcast shows up in Missed; the roster is read at report time.
type FullReport struct {
	Incident  store.Incident     `json:"incident"`
	Responded []RespondedEntry   `json:"responded"`
	Missed    []store.Subscriber `json:"missed"`
}

// CompileLive renders the live summary: the incident header and the
// list of members currently committed to going. With no responses it
// renders an explicit placeholder, never an empty section.
func (c *Compiler) CompileLive(ctx context.Context, incidentID int64) (string, error) {
	incident, err := c.incidents.Get(ctx, incidentID)
	if err != nil {
		return "", err
	}
	if incident == nil {
		return "", store.ErrNotFound
	}
	responses, err := c.responses.ListByIncident(ctx, incidentID)
	if err != nil {
		return "", err
	}
	lines := []string{
		text(c.lang, "alert.summary.header"),
		strings.TrimSpace(incident.Description),
	}
	if strings.TrimSpace(incident.Place) != "" {
		lines = append(lines, fmt.Sprintf("%s: %s", text(c.lang, "alert.notify.place"), strings.TrimSpace(incident.Place)))
	}
	lines = append(lines, "")
	var going []string
	for _, r := range responses {
		if r.Status != store.StatusGoing {
			continue
		}
		going = append(going, " - "+c.displayName(ctx, r.UserID))
	}
	if len(going) == 0 {
		lines = append(lines, fmt.Sprintf("%s %s", text(c.lang, "alert.summary.going"), text(c.lang, "alert.summary.none")))
	} else {
		lines = append(lines, text(c.lang, "alert.summary.going"))
		lines = append(lines, going...)
	}
	return strings.Join(lines, "\n"), nil
}

// CompileFull joins every recorded response with subscriber identity
// and diffs the result against the current roster.
func (c *Compiler) CompileFull(ctx context.Context, incidentID int64) (*FullReport, error) {
	incident, err := c.incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident == nil {
		return nil, store.ErrNotFound
	}
	responses, err := c.responses.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	roster, err := c.subscribers.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	report := &FullReport{Incident: *incident}
	respondedIDs := map[int64]struct{}{}
	for _, r := range responses {
		respondedIDs[r.UserID] = struct{}{}
		sub := c.lookup(ctx, r.UserID)
		report.Responded = append(report.Responded, RespondedEntry{
			Subscriber: sub,
			Status:     r.Status,
			Lat:        r.Lat,
			Lon:        r.Lon,
		})
	}
	for _, member := range roster {
		if _, ok := respondedIDs[member.UserID]; ok {
			continue
		}
		report.Missed = append(report.Missed, member)
	}
	return report, nil
}

// RenderFull is the chat rendering of a full report.
func (c *Compiler) RenderFull(report *FullReport) string {
	lines := []string{
		text(c.lang, "alert.report.header"),
		strings.TrimSpace(report.Incident.Description),
	}
	if strings.TrimSpace(report.Incident.Place) != "" {
		lines = append(lines, fmt.Sprintf("%s: %s", text(c.lang, "alert.notify.place"), strings.TrimSpace(report.Incident.Place)))
	}
	lines = append(lines, "")
	if len(report.Responded) > 0 {
		lines = append(lines, text(c.lang, "alert.report.responded"))
		for _, entry := range report.Responded {
			lines = append(lines, fmt.Sprintf(" - %s: %s", entry.Subscriber.DisplayName(), statusLabel(c.lang, entry.Status)))
		}
	}
	if len(report.Missed) > 0 {
		if len(report.Responded) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, text(c.lang, "alert.report.missed"))
		for _, member := range report.Missed {
			lines = append(lines, " - "+member.DisplayName())
		}
	}
	return strings.Join(lines, "\n")
}

// ListEntry renders one selectable line for the recent-incident list.
func (c *Compiler) ListEntry(incident store.Incident) string {
	return fmt.Sprintf("#%d %s — %s", incident.ID, formatLocalTime(incident.CreatedAt), truncate(incident.Description, 40))
}

func (c *Compiler) lookup(ctx context.Context, userID int64) store.Subscriber {
	sub, err := c.subscribers.Get(ctx, userID)
	if err != nil || sub == nil {
		return store.Subscriber{UserID: userID}
	}
	return *sub
}

func (c *Compiler) displayName(ctx context.Context, userID int64) string {
	return c.lookup(ctx, userID).DisplayName()
}
