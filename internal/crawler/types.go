package crawler

import (
	"time"
)

// Record is one feed post ready for storage
type Record struct {
	ID         int64      `json:"id"`
	Author     string     `json:"author"`
	Content    string     `json:"content"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ReplyCount *int64     `json:"reply_count,omitempty"`
	ShareCount *int64     `json:"share_count,omitempty"`
	LikeCount  *int64     `json:"like_count,omitempty"`
	IngestedAt time.Time  `json:"ingested_at"`
}

// Candidate is what the extractor reads off one feed item, before the run
// stamps author and ingestion date on it
type Candidate struct {
	ID         int64
	Content    string
	CreatedAt  *time.Time
	ReplyCount *int64
	ShareCount *int64
	LikeCount  *int64
}

// Stamp turns the candidate into a record of the given run
func (c Candidate) Stamp(author string, ingestedAt time.Time) Record {
	return Record{
		ID:         c.ID,
		Author:     author,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		ReplyCount: c.ReplyCount,
		ShareCount: c.ShareCount,
		LikeCount:  c.LikeCount,
		IngestedAt: ingestedAt,
	}
}

// Batch is a non-empty group of records committed together
type Batch struct {
	// Seq numbers batches of one run from 1
	Seq     int
	Records []Record
}

// Len returns the number of records in the batch
func (b Batch) Len() int {
	return len(b.Records)
}

// IDRange returns the first and last record IDs, zero for an empty batch
func (b Batch) IDRange() (first, last int64) {
	if len(b.Records) == 0 {
		return 0, 0
	}
	return b.Records[0].ID, b.Records[len(b.Records)-1].ID
}

// IDExtractorFunc extracts a numeric post ID from a permalink
type IDExtractorFunc func(href string) (int64, error)

// Selectors contains CSS selectors for the elements of a feed page
type Selectors struct {
	// Items is the primary feed item selector
	Items string `yaml:"items"`
	// FallbackItems is consulted only when Items matches nothing
	FallbackItems string `yaml:"fallback_items"`
	// WaitMarkers are the selectors that signal rendered content
	WaitMarkers []string `yaml:"wait_markers"`

	StatusLink string `yaml:"status_link"`
	Time       string `yaml:"time"`
	Content    string `yaml:"content"`
	Reply      string `yaml:"reply"`
	Share      string `yaml:"share"`
	Like       string `yaml:"like"`
}

// DefaultSelectors returns the selectors of the X profile timeline
func DefaultSelectors() Selectors {
	return Selectors{
		Items:         "article",
		FallbackItems: `div[data-testid="tweetText"]`,
		WaitMarkers: []string{
			"article",
			`div[data-testid="cellInnerDiv"]`,
			`a[href*="/status/"]`,
		},
		StatusLink: `a[href*="/status/"]`,
		Time:       "time",
		Content:    "div[lang]",
		Reply:      `div[data-testid="reply"]`,
		Share:      `div[data-testid="retweet"]`,
		Like:       `div[data-testid="like"]`,
	}
}
