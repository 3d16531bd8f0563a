package review

import (
	"context"
	"sync"

	"github.com/jonwraymond/annosync/coalesce"
	"github.com/jonwraymond/annosync/observe"
)

// OpinionDraft buffers per-keystroke edits of one sample's expert opinion
// and commits only the final value after a quiet window. Close flushes any
// pending edit, so a draft abandoned mid-burst still reaches the server.
type OpinionDraft struct {
	sampleID string
	client   *Client
	co       *coalesce.Coalescer[string]

	mu  sync.Mutex
	err error
}

// NewOpinionDraft creates a draft editor for one sample. The quiet window
// is the client's OpinionDelay.
func (c *Client) NewOpinionDraft(sampleID string) *OpinionDraft {
	d := &OpinionDraft{sampleID: sampleID, client: c}
	d.co = coalesce.New(c.opinionDelay, d.commit)
	return d
}

// Write records the current opinion text and restarts the quiet window.
func (d *OpinionDraft) Write(opinion string) {
	d.co.Write(opinion)
}

// Flush commits any pending value immediately, e.g. on field blur.
func (d *OpinionDraft) Flush() {
	d.co.Flush()
}

// Close flushes any pending value and stops the draft. Further writes are
// ignored.
func (d *OpinionDraft) Close() {
	d.co.Close()
}

// Pending reports whether an uncommitted value is waiting on the quiet
// window.
func (d *OpinionDraft) Pending() bool {
	_, ok := d.co.Pending()
	return ok
}

// Err returns the error of the most recent commit, if any.
func (d *OpinionDraft) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *OpinionDraft) commit(opinion string) {
	_, err := d.client.UpdateOpinion.Run(context.Background(), UpdateOpinionArgs{
		SampleID:      d.sampleID,
		ExpertOpinion: opinion,
	})
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	if err != nil {
		d.client.logger.Warn(context.Background(), "opinion commit failed",
			observe.F("sample_id", d.sampleID),
			observe.F("error", err.Error()))
	}
}
