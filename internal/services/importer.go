package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"

	"race-crew-network/internal/models"
)

// Stream event types. Every run emits ordered progress events and exactly
// one terminal event (done or failed), always last.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
	EventDone     = "done"
	EventFailed   = "failed"
)

// ProgressEvent is one frame of an import or discovery stream.
type ProgressEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ContentFetcher retrieves a URL as plain text.
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// EventExtractor is the model-backed extraction surface the orchestrator
// drives.
type EventExtractor interface {
	ExtractRegattas(ctx context.Context, content string, year int) ([]models.ExtractedEvent, error)
	DiscoverDocuments(ctx context.Context, content, regattaName, sourceURL string) ([]models.DiscoveredDocument, error)
	DiscoverDocumentsDeep(ctx context.Context, content, regattaName, sourceURL string) ([]models.DiscoveredDocument, error)
}

// RegattaStore is the persistence collaborator. Nothing is written through
// it until the operator confirms an import.
type RegattaStore interface {
	RegattaFinder
	CreateRegatta(ctx context.Context, regatta *models.Regatta) error
	CreateDocument(ctx context.Context, doc *models.Document) error
}

// ImportRequest triggers an extraction run from pasted text or a URL.
type ImportRequest struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
	Year int    `json:"year,omitempty"`
}

// ConfirmEventInput is one operator-approved candidate to persist.
type ConfirmEventInput struct {
	Name        string                      `json:"name"`
	BoatClass   string                      `json:"boat_class,omitempty"`
	Location    string                      `json:"location,omitempty"`
	LocationURL string                      `json:"location_url,omitempty"`
	StartDate   string                      `json:"start_date"`
	EndDate     string                      `json:"end_date,omitempty"`
	Notes       string                      `json:"notes,omitempty"`
	Documents   []models.DiscoveredDocument `json:"documents,omitempty"`
}

// ConfirmRequest persists the selected candidates and their documents.
type ConfirmRequest struct {
	Events    []ConfirmEventInput `json:"events"`
	CreatedBy string              `json:"created_by"`
}

// ConfirmResult reports what the confirmation step did.
type ConfirmResult struct {
	Created           int `json:"created"`
	Skipped           int `json:"skipped"`
	DocumentsAttached int `json:"documents_attached"`
}

// Importer drives the import pipeline: fetch, extract, flag past events,
// duplicate-check, hold results for confirmation; and the per-candidate
// document-discovery crawl capped at two fetches.
type Importer struct {
	fetcher    ContentFetcher
	ai         EventExtractor
	duplicates *DuplicateDetector
	store      RegattaStore
	held       HeldResultStore
	platforms  []PlatformResolver
	now        func() time.Time
}

// NewImporter wires the pipeline. Platform resolvers are tried in order
// before falling back to model-based document discovery.
func NewImporter(fetcher ContentFetcher, ai EventExtractor, store RegattaStore, held HeldResultStore, platforms ...PlatformResolver) *Importer {
	return &Importer{
		fetcher:    fetcher,
		ai:         ai,
		duplicates: NewDuplicateDetector(store),
		store:      store,
		held:       held,
		platforms:  platforms,
		now:        time.Now,
	}
}

// Import starts an extraction run and returns its event stream. The channel
// is closed after the terminal event; cancelling ctx aborts the run.
func (imp *Importer) Import(ctx context.Context, req ImportRequest) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)
		imp.runImport(ctx, req, out)
	}()
	return out
}

func (imp *Importer) runImport(ctx context.Context, req ImportRequest, out chan<- ProgressEvent) {
	year := req.Year
	if year == 0 {
		year = imp.now().Year()
	}

	content := strings.TrimSpace(req.Text)
	if req.URL != "" {
		if !emit(ctx, out, ProgressEvent{Type: EventProgress, Message: "Fetching page..."}) {
			return
		}
		fetched, err := imp.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			emit(ctx, out, ProgressEvent{Type: EventFailed, Message: fmt.Sprintf("Could not fetch URL: %v", err)})
			return
		}
		content = fetched
	}

	if content == "" {
		emit(ctx, out, ProgressEvent{Type: EventFailed, Message: "No content to process."})
		return
	}

	if !emit(ctx, out, ProgressEvent{Type: EventProgress, Message: "Extracting events with AI..."}) {
		return
	}
	events, err := imp.ai.ExtractRegattas(ctx, content, year)
	if err != nil {
		emit(ctx, out, ProgressEvent{Type: EventFailed, Message: userMessage(err)})
		return
	}

	if !emit(ctx, out, ProgressEvent{Type: EventProgress, Message: "Checking dates and duplicates..."}) {
		return
	}

	today := imp.now().Format("2006-01-02")
	pastCount := 0
	for i := range events {
		if events[i].StartDate != "" && events[i].StartDate < today {
			events[i].IsPast = true
			pastCount++
		}
	}

	dupCount := 0
	for i := range events {
		ref, err := imp.duplicates.Check(ctx, events[i].Name, events[i].StartDate)
		if err != nil {
			emit(ctx, out, ProgressEvent{Type: EventFailed, Message: "Could not check for duplicate regattas."})
			return
		}
		if ref != nil {
			events[i].DuplicateOf = ref
			dupCount++
		}
	}

	token := imp.held.Put(models.HeldImport{Events: events, Year: year, CreatedAt: imp.now()})
	emit(ctx, out, ProgressEvent{
		Type:    EventDone,
		TaskID:  token,
		Summary: importSummary(len(events), pastCount, dupCount),
	})
}

func importSummary(total, past, dups int) string {
	if total == 0 {
		return "No events found in the provided content."
	}
	upcoming := total - past
	if upcoming == 0 {
		return fmt.Sprintf("No upcoming regattas found. (%d past event(s) flagged.)", past)
	}
	s := fmt.Sprintf("Found %d event(s): %d upcoming", total, upcoming)
	if past > 0 {
		s += fmt.Sprintf(", %d past", past)
	}
	if dups > 0 {
		s += fmt.Sprintf(", %d duplicate(s)", dups)
	}
	return s + "."
}

// Discover starts a document-discovery run over previously extracted
// candidates and returns its event stream. Each candidate's outcome is
// emitted as a result or error event; failures never abort the batch.
func (imp *Importer) Discover(ctx context.Context, events []models.ExtractedEvent, year int) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)
		imp.runDiscover(ctx, events, year, out)
	}()
	return out
}

func (imp *Importer) runDiscover(ctx context.Context, events []models.ExtractedEvent, year int, out chan<- ProgressEvent) {
	if year == 0 {
		year = imp.now().Year()
	}

	checked := 0
	for i := range events {
		ev := &events[i]
		if ev.DetailURL == "" {
			continue
		}
		checked++

		if !emit(ctx, out, ProgressEvent{Type: EventProgress, Message: fmt.Sprintf("Looking for documents for %s...", ev.Name)}) {
			return
		}

		docs, err := imp.discoverForEvent(ctx, ev)
		if err != nil {
			ev.DiscoveryError = userMessage(err)
			if !emit(ctx, out, ProgressEvent{Type: EventError, Message: fmt.Sprintf("%s: %s", ev.Name, ev.DiscoveryError)}) {
				return
			}
			continue
		}

		ev.Documents = docs
		if !emit(ctx, out, ProgressEvent{Type: EventResult, Message: fmt.Sprintf("%s: %s", ev.Name, describeDocuments(docs))}) {
			return
		}
	}

	token := imp.held.Put(models.HeldImport{Events: events, Year: year, CreatedAt: imp.now()})
	emit(ctx, out, ProgressEvent{
		Type:    EventDone,
		TaskID:  token,
		Summary: fmt.Sprintf("Document discovery finished for %d candidate(s).", checked),
	})
}

// discoverForEvent runs the two-level crawl for one candidate: a shallow
// pass on the detail page (platform API when recognized, model discovery
// otherwise) and at most one deep pass through a discovered WWW link. Never
// more than two fetches.
func (imp *Importer) discoverForEvent(ctx context.Context, ev *models.ExtractedEvent) ([]models.DiscoveredDocument, error) {
	docs, handled := imp.platformDocuments(ctx, ev.DetailURL)
	if !handled {
		content, err := imp.fetcher.Fetch(ctx, ev.DetailURL)
		if err != nil {
			return nil, err
		}
		docs, err = imp.ai.DiscoverDocuments(ctx, content, ev.Name, ev.DetailURL)
		if err != nil {
			return nil, err
		}
	}

	if !hasDocType(docs, models.DocTypeNOR) || !hasDocType(docs, models.DocTypeSI) {
		for _, d := range docs {
			if d.DocType != models.DocTypeWWW {
				continue
			}
			deep := imp.deepPass(ctx, ev, d.URL)
			for _, nd := range deep {
				if !hasDocType(docs, nd.DocType) {
					docs = append(docs, nd)
				}
			}
			// One deep pass per candidate, whatever it found.
			break
		}
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].DocType < docs[j].DocType })
	return docs, nil
}

// deepPass fetches a candidate's own website link and extracts NOR/SI only.
// Best-effort: a failure here keeps the shallow results.
func (imp *Importer) deepPass(ctx context.Context, ev *models.ExtractedEvent, wwwURL string) []models.DiscoveredDocument {
	if docs, handled := imp.platformDocuments(ctx, wwwURL); handled {
		return docs
	}

	content, err := imp.fetcher.Fetch(ctx, wwwURL)
	if err != nil {
		log.Printf("deep discovery fetch failed for %s (%s): %v", ev.Name, wwwURL, err)
		return nil
	}
	docs, err := imp.ai.DiscoverDocumentsDeep(ctx, content, ev.Name, wwwURL)
	if err != nil {
		log.Printf("deep discovery failed for %s (%s): %v", ev.Name, wwwURL, err)
		return nil
	}
	return docs
}

// platformDocuments tries the ordered platform resolvers. A recognized URL
// is handled by its platform even when the platform returns no documents.
func (imp *Importer) platformDocuments(ctx context.Context, rawURL string) ([]models.DiscoveredDocument, bool) {
	for _, p := range imp.platforms {
		if id := p.Recognize(rawURL); id != "" {
			return p.Documents(ctx, id), true
		}
	}
	return nil, false
}

// Confirm re-validates and persists operator-approved candidates. Invalid
// and duplicate entries are skipped, not errors; store failures abort.
func (imp *Importer) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	var res ConfirmResult

	for _, in := range req.Events {
		name := strings.TrimSpace(in.Name)
		startDate := strings.TrimSpace(in.StartDate)
		endDate := strings.TrimSpace(in.EndDate)

		if name == "" || startDate == "" {
			res.Skipped++
			continue
		}

		start, err := models.ParseISODate(startDate)
		if err != nil {
			res.Skipped++
			continue
		}
		if endDate != "" {
			end, err := models.ParseISODate(endDate)
			if err != nil || end.Before(start) {
				res.Skipped++
				continue
			}
		}

		ref, err := imp.duplicates.Check(ctx, name, startDate)
		if err != nil {
			return res, err
		}
		if ref != nil {
			res.Skipped++
			continue
		}

		location := strings.TrimSpace(in.Location)
		locationURL := strings.TrimSpace(in.LocationURL)
		if locationURL == "" && location != "" {
			locationURL = "https://www.google.com/maps/search/" + url.QueryEscape(location)
		}
		if location == "" {
			location = "TBD"
		}
		boatClass := strings.TrimSpace(in.BoatClass)
		if boatClass == "" {
			boatClass = "TBD"
		}

		regatta := &models.Regatta{
			Name:        name,
			BoatClass:   boatClass,
			Location:    location,
			LocationURL: locationURL,
			StartDate:   startDate,
			EndDate:     endDate,
			Notes:       strings.TrimSpace(in.Notes),
			CreatedBy:   req.CreatedBy,
		}
		if err := imp.store.CreateRegatta(ctx, regatta); err != nil {
			return res, err
		}
		res.Created++

		for _, d := range in.Documents {
			if d.URL == "" || !models.ValidateDocType(d.DocType) {
				continue
			}
			doc := &models.Document{
				RegattaID:  regatta.ID,
				DocType:    d.DocType,
				Label:      d.Label,
				URL:        d.URL,
				UploadedBy: req.CreatedBy,
			}
			if err := imp.store.CreateDocument(ctx, doc); err != nil {
				return res, err
			}
			res.DocumentsAttached++
		}
	}

	return res, nil
}

// PopHeldResult claims a held run output. Read-once: the second call with
// the same token reports ErrNotFound.
func (imp *Importer) PopHeldResult(token string) (models.HeldImport, error) {
	result, ok := imp.held.Pop(token)
	if !ok {
		return models.HeldImport{}, ErrNotFound
	}
	return result, nil
}

func hasDocType(docs []models.DiscoveredDocument, docType string) bool {
	for _, d := range docs {
		if d.DocType == docType {
			return true
		}
	}
	return false
}

func describeDocuments(docs []models.DiscoveredDocument) string {
	if len(docs) == 0 {
		return "no documents found"
	}
	types := make([]string, 0, len(docs))
	for _, d := range docs {
		types = append(types, d.DocType)
	}
	return "found " + strings.Join(types, ", ")
}

// userMessage maps pipeline errors to the short messages shown to the
// admin. Raw parse details stay in the log, never in the stream.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrAINotConfigured):
		return ErrAINotConfigured.Error()
	case errors.Is(err, ErrParse):
		return "Could not parse the AI response. Try again with clearer input."
	case errors.Is(err, ErrBadFormat):
		return "Unexpected AI response format."
	case errors.Is(err, ErrConnectivity):
		return err.Error()
	default:
		return err.Error()
	}
}

// emit delivers one stream event unless the caller has gone away.
func emit(ctx context.Context, out chan<- ProgressEvent, ev ProgressEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
