package core

import (
	"fmt"
	"strings"
	"time"
)

// Placeholder is a {{name}} token found in document text.
type Placeholder struct {
	RawToken string `json:"raw_token"` // Literal token as written: "{{ Name }}"
	Name     string `json:"name"`      // Trimmed inner text: "Name"
}

// ColumnMapping maps a placeholder name to a spreadsheet column header.
type ColumnMapping map[string]string

// SourceRow is one data row of a spreadsheet section.
// Index is 1-based relative to the header row; row 0 is the header itself.
type SourceRow struct {
	Index  int   `json:"index"`
	Values []any `json:"values"`
}

// SheetData is a snapshot of one spreadsheet section.
type SheetData struct {
	Headers []string    `json:"headers"`
	Display []string    `json:"display,omitempty"` // Optional display aliases, aligned with Headers
	Rows    []SourceRow `json:"rows"`
}

// Row returns the data row with the given 1-based index.
func (d SheetData) Row(index int) (SourceRow, bool) {
	if index < 1 || index > len(d.Rows) {
		return SourceRow{}, false
	}
	return d.Rows[index-1], true
}

// TextElement is one text-bearing node of a presentation.
// Nested groups and table cells are flattened into separate elements.
type TextElement struct {
	PageID    string `json:"page_id"`
	ElementID string `json:"element_id"`
	Text      string `json:"text"`
}

// PreviewChange describes how one text element changes when a row is applied.
type PreviewChange struct {
	TargetID   string   `json:"target_id"`
	ElementID  string   `json:"element_id"`
	OldContent string   `json:"old_content"`
	NewContent string   `json:"new_content"`
	Variables  []string `json:"variables"`
}

// CellWrite is a single spreadsheet cell assignment.
// Row is the 1-based data row index; Column is the 0-based header position.
type CellWrite struct {
	Section string `json:"section"`
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	Value   any    `json:"value"`
}

// JobStatus is the lifecycle state of a GenerationJob.
type JobStatus string

const (
	JobPending             JobStatus = "pending"
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithErrors, JobFailed:
		return true
	}
	return false
}

// OutputMode selects how a generation job writes its output.
type OutputMode string

const (
	// ModePerRow creates one output presentation per spreadsheet row.
	ModePerRow OutputMode = "per_row"
	// ModeSingleDeck accumulates every row into one output presentation.
	ModeSingleDeck OutputMode = "single_deck"
)

// ParseOutputMode validates a mode string. Empty selects def.
func ParseOutputMode(s string, def OutputMode) (OutputMode, error) {
	switch OutputMode(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case ModePerRow:
		return ModePerRow, nil
	case ModeSingleDeck:
		return ModeSingleDeck, nil
	}
	return "", validationf("invalid output mode %q: must be per_row or single_deck", s)
}

// RowError records the failure of a single row.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// GenerationJob is the durable record of a batch generation.
type GenerationJob struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	SyncConfigID  string        `json:"sync_config_id,omitempty"`
	SourceDocID   string        `json:"source_doc_id"`
	SourceSection string        `json:"source_section,omitempty"`
	TargetDocID   string        `json:"target_doc_id"`
	Title         string        `json:"title"`
	Mode          OutputMode    `json:"mode"`
	Mapping       ColumnMapping `json:"column_mapping,omitempty"`
	Status        JobStatus     `json:"status"`
	TotalRows     int           `json:"total_rows"`
	ProcessedRows int           `json:"processed_rows"`
	ErrorRows     int           `json:"error_rows"`
	Errors        []RowError    `json:"errors"`
	Failure       string        `json:"failure,omitempty"`
	ResultDocID   string        `json:"result_doc_id,omitempty"`

	// TemplatePages are the slide ids of the template inside a single-deck
	// output. They are removed when the job completes.
	TemplatePages []string `json:"-"`

	ClaimedBy      string     `json:"-"`
	ClaimExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to callers.
func (j *GenerationJob) Clone() *GenerationJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Errors = append([]RowError(nil), j.Errors...)
	c.TemplatePages = append([]string(nil), j.TemplatePages...)
	if j.Mapping != nil {
		c.Mapping = make(ColumnMapping, len(j.Mapping))
		for k, v := range j.Mapping {
			c.Mapping[k] = v
		}
	}
	if j.ClaimExpiresAt != nil {
		t := *j.ClaimExpiresAt
		c.ClaimExpiresAt = &t
	}
	return &c
}

// GenerationOutput links one processed row to the document written for it.
type GenerationOutput struct {
	JobID     string    `json:"job_id"`
	Row       int       `json:"row"`
	DocID     string    `json:"doc_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Frequency is how often an automatic sync runs on schedule.
type Frequency string

const (
	FrequencyHour Frequency = "hour"
	FrequencyDay  Frequency = "day"
	FrequencyWeek Frequency = "week"
)

// Interval returns the minimum time between scheduled syncs.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyHour:
		return time.Hour
	case FrequencyWeek:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParseFrequency validates a frequency string. Empty defaults to day.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case "", FrequencyDay:
		return FrequencyDay, nil
	case FrequencyHour:
		return FrequencyHour, nil
	case FrequencyWeek:
		return FrequencyWeek, nil
	}
	return "", validationf("invalid frequency %q: must be hour, day or week", s)
}

// SyncConfig links a source spreadsheet to a target presentation.
type SyncConfig struct {
	ID                   string        `json:"id"`
	OwnerID              string        `json:"owner_id"`
	SourceDocID          string        `json:"source_doc_id"`
	SourceSection        string        `json:"source_section,omitempty"`
	TargetDocID          string        `json:"target_doc_id,omitempty"`
	Mapping              ColumnMapping `json:"column_mapping,omitempty"`
	Mode                 OutputMode    `json:"mode"`
	Automatic            bool          `json:"automatic"`
	Frequency            Frequency     `json:"frequency"`
	LastSyncAt           *time.Time    `json:"last_sync_at,omitempty"`
	NotificationChannels []string      `json:"notification_channels"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Due reports whether a scheduled sync should run at now.
func (c *SyncConfig) Due(now time.Time) bool {
	if !c.Automatic || c.TargetDocID == "" {
		return false
	}
	if c.LastSyncAt == nil {
		return true
	}
	return now.Sub(*c.LastSyncAt) >= c.Frequency.Interval()
}

// ChannelKind identifies a notification transport.
type ChannelKind string

const (
	ChannelEmail ChannelKind = "email"
	ChannelSMS   ChannelKind = "sms"
	ChannelTopic ChannelKind = "topic"
)

// Channel is a parsed notification channel such as "email:ops@example.com".
type Channel struct {
	Kind    ChannelKind
	Address string
}

// ParseChannel parses a "kind:address" notification channel.
func ParseChannel(s string) (Channel, error) {
	kind, addr, ok := strings.Cut(strings.TrimSpace(s), ":")
	addr = strings.TrimSpace(addr)
	if !ok || addr == "" {
		return Channel{}, validationf("invalid notification channel %q: want kind:address", s)
	}
	switch k := ChannelKind(strings.ToLower(kind)); k {
	case ChannelEmail, ChannelSMS, ChannelTopic:
		return Channel{Kind: k, Address: addr}, nil
	}
	return Channel{}, validationf("invalid notification channel %q: kind must be email, sms or topic", s)
}

// JobNotification is sent to a sync configuration's channels when its job ends.
type JobNotification struct {
	JobID         string
	ConfigID      string
	Status        JobStatus
	TotalRows     int
	ProcessedRows int
	ErrorRows     int
	ResultURL     string
	Failure       string
}

// Subject returns a one-line summary suitable for an email subject.
func (n JobNotification) Subject() string {
	return fmt.Sprintf("Sync %s: %d/%d rows, %d errors", n.Status, n.ProcessedRows, n.TotalRows, n.ErrorRows)
}

// Body returns the plain text notification body.
func (n JobNotification) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s finished with status %s.\n", n.JobID, n.Status)
	fmt.Fprintf(&b, "Rows processed: %d of %d (%d with errors).\n", n.ProcessedRows, n.TotalRows, n.ErrorRows)
	if n.ResultURL != "" {
		fmt.Fprintf(&b, "Result: %s\n", n.ResultURL)
	}
	if n.Failure != "" {
		fmt.Fprintf(&b, "Failure: %s\n", n.Failure)
	}
	return b.String()
}
