package review

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNewDraft(t *testing.T) {
	d := NewDraft("layout_analysis", "anthropic", "claude-sonnet-4-20250514")

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, StatusPending, d.Status)
	assert.True(t, d.Pending())
	assert.False(t, d.CreatedAt.IsZero())
	assert.Nil(t, d.ReviewedAt)
}

func TestDraft_IDStable(t *testing.T) {
	d := NewDraft("ocr", "ollama", "llama3.1:8b")
	id := d.ID

	require.NoError(t, d.Accept(intPtr(4), "clean"))
	assert.Equal(t, id, d.ID)
}

func TestDraft_Accept(t *testing.T) {
	d := NewDraft("ocr", "ollama", "llama3.1:8b")

	require.NoError(t, d.Accept(intPtr(5), "perfect transcription"))

	assert.Equal(t, StatusAccepted, d.Status)
	assert.Equal(t, 5, *d.QualityRating)
	assert.Equal(t, "perfect transcription", d.QualityNotes)
	require.NotNil(t, d.ReviewedAt)
}

func TestDraft_AcceptRatingBounds(t *testing.T) {
	d := NewDraft("ocr", "ollama", "llama3.1:8b")

	assert.Error(t, d.Accept(intPtr(0), ""))
	assert.Error(t, d.Accept(intPtr(6), ""))
	assert.Equal(t, StatusPending, d.Status)

	require.NoError(t, d.Accept(nil, ""))
	assert.Nil(t, d.QualityRating)
}

func TestDraft_Modify(t *testing.T) {
	d := NewDraft("translation", "openai", "gpt-4o")

	require.NoError(t, d.Modify("corrected rendering of line 3", intPtr(3)))

	assert.Equal(t, StatusModified, d.Status)
	assert.Equal(t, "corrected rendering of line 3", d.Modifications)
	assert.Equal(t, 3, *d.QualityRating)
	require.NotNil(t, d.ReviewedAt)
}

func TestDraft_ModifyRequiresText(t *testing.T) {
	d := NewDraft("translation", "openai", "gpt-4o")
	assert.Error(t, d.Modify("", nil))
	assert.True(t, d.Pending())
}

func TestDraft_Reject(t *testing.T) {
	d := NewDraft("layout_analysis", "anthropic", "claude-sonnet-4-20250514")

	require.NoError(t, d.Reject("wrong columns"))

	assert.Equal(t, StatusRejected, d.Status)
	assert.Equal(t, "wrong columns", d.QualityNotes)
	require.NotNil(t, d.ReviewedAt)
}

func TestDraft_TerminalResolutionOverwrites(t *testing.T) {
	d := NewDraft("ocr", "ollama", "llama3.1:8b")

	require.NoError(t, d.Reject("smudged scan"))
	require.NoError(t, d.Accept(intPtr(4), "re-reviewed, usable"))

	assert.Equal(t, StatusAccepted, d.Status)
	assert.Equal(t, "re-reviewed, usable", d.QualityNotes)
}

func TestDraft_ReResolutionClearsStaleFields(t *testing.T) {
	d := NewDraft("ocr", "ollama", "llama3.1:8b")

	// a rejection after an accept must not keep the accept's rating
	require.NoError(t, d.Accept(intPtr(4), "usable"))
	require.NoError(t, d.Reject("on reflection, unusable"))

	assert.Nil(t, d.QualityRating)
	dict := d.ToDict()
	assert.NotContains(t, dict, "quality_rating")
	assert.Equal(t, "on reflection, unusable", dict["quality_notes"])

	// a modification after a rejection must not keep the rejection's notes
	require.NoError(t, d.Modify("rewrote line 2", nil))

	assert.Empty(t, d.QualityNotes)
	dict = d.ToDict()
	assert.NotContains(t, dict, "quality_notes")
	assert.Equal(t, "rewrote line 2", dict["modifications"])
}

func TestDraft_ToDict_OmitsUnsetFields(t *testing.T) {
	d := NewDraft("bibliography", "anthropic", "claude-sonnet-4-20250514")

	dict := d.ToDict()
	assert.Equal(t, d.ID, dict["draft_id"])
	assert.Equal(t, "pending", dict["status"])
	assert.NotContains(t, dict, "quality_rating")
	assert.NotContains(t, dict, "quality_notes")
	assert.NotContains(t, dict, "modifications")
	assert.NotContains(t, dict, "reviewed_at")

	require.NoError(t, d.Modify("fixed citation order", intPtr(4)))
	dict = d.ToDict()
	assert.Equal(t, "modified", dict["status"])
	assert.Equal(t, 4, dict["quality_rating"])
	assert.Equal(t, "fixed citation order", dict["modifications"])
	assert.Contains(t, dict, "reviewed_at")
}

func TestStore_AddGetList(t *testing.T) {
	s := NewStore()

	first := NewDraft("ocr", "ollama", "llama3.1:8b")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	second := NewDraft("translation", "openai", "gpt-4o")

	s.Add(first)
	s.Add(second)

	got, err := s.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.Get("no-such-id")
	assert.ErrorIs(t, err, ErrDraftNotFound)

	_, err = s.Resolve(first.ID, func(d *Draft) error {
		return d.Accept(nil, "")
	})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	// pending drafts sort first
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, StatusAccepted, list[1].Status)
	assert.Equal(t, 2, s.Count())
}

func TestStore_AccessorsReturnSnapshots(t *testing.T) {
	s := NewStore()
	d := NewDraft("ocr", "ollama", "llama3.1:8b")
	s.Add(d)

	// mutating the caller's pointer or a returned snapshot never reaches
	// the stored draft
	require.NoError(t, d.Reject("local copy only"))

	got, err := s.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	got.Status = StatusRejected
	got.QualityNotes = "snapshot scribble"

	again, err := s.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
	assert.Empty(t, again.QualityNotes)
}

func TestStore_Resolve(t *testing.T) {
	s := NewStore()
	d := NewDraft("translation", "openai", "gpt-4o")
	s.Add(d)

	resolved, err := s.Resolve(d.ID, func(d *Draft) error {
		return d.Accept(intPtr(5), "exact")
	})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, resolved.Status)

	stored, err := s.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, stored.Status)

	_, err = s.Resolve("no-such-id", func(d *Draft) error { return nil })
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestStore_ResolveFailureLeavesDraftPending(t *testing.T) {
	s := NewStore()
	d := NewDraft("translation", "openai", "gpt-4o")
	s.Add(d)

	_, err := s.Resolve(d.ID, func(d *Draft) error {
		return d.Modify("", nil)
	})
	require.Error(t, err)

	stored, err := s.Get(d.ID)
	require.NoError(t, err)
	assert.True(t, stored.Pending())
}

func TestStore_ConcurrentResolveAndList(t *testing.T) {
	s := NewStore()

	ids := make([]string, 8)
	for i := range ids {
		d := NewDraft("ocr", "ollama", "llama3.1:8b")
		ids[i] = d.ID
		s.Add(d)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Resolve(id, func(d *Draft) error {
				return d.Reject("smudged scan")
			})
			assert.NoError(t, err)
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			for _, d := range s.List() {
				_ = d.ToDict()
			}
		}
	}()
	wg.Wait()

	for _, d := range s.List() {
		assert.Equal(t, StatusRejected, d.Status)
	}
}
