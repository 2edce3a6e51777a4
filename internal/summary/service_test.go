package summary_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/craftwiki/internal/apperr"
	"github.com/starford/craftwiki/internal/cache"
	"github.com/starford/craftwiki/internal/checksum"
	"github.com/starford/craftwiki/internal/metrics"
	"github.com/starford/craftwiki/internal/models"
	"github.com/starford/craftwiki/internal/outline"
	"github.com/starford/craftwiki/internal/sse"
	"github.com/starford/craftwiki/internal/store"
	"github.com/starford/craftwiki/internal/summary"
	"github.com/starford/craftwiki/internal/testutil"
)

const guidesText = `# Summary

## Guides
Everything a new player needs.

* [Intro](intro)
  * [Setup](setup)
* [Advanced](advanced)

### PvP

* [Duels](duels)

## Rules

* [Chat](chat)
`

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) PublishChange(kind, slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+slug)
}

func (r *recordingPublisher) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestApplyThenPull_RoundTrip(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	ctx := context.Background()

	res := svc.ApplyOutlineText(ctx, guidesText)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, metrics.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, res.Categories.Created)
	assert.Equal(t, 5, res.Pages.Created)
	assert.Equal(t, guidesText, res.Text)

	text, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	assert.Equal(t, guidesText, text)

	want, err := outline.Parse(guidesText)
	require.NoError(t, err)
	got, err := svc.PullOutline(ctx)
	require.NoError(t, err)
	assert.True(t, outline.Equal(want.Nodes, got), "pulled tree differs from parsed tree")
}

func TestApply_ParseErrorLeavesStoreUntouched(t *testing.T) {
	st := testutil.TestStore(t)
	svc := summary.NewService(st)

	res := svc.ApplyOutlineText(context.Background(), "# Summary\n\n* [Orphan](orphan)\n")
	assert.False(t, res.Success)
	assert.Equal(t, metrics.OutcomeInvalid, res.Outcome)
	assert.Contains(t, res.Message, outline.MsgPageOutsideCategory)
	assert.Equal(t, 3, res.Line)

	pages, err := st.ListPages(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestApply_DuplicateSlugIsInvalid(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	res := svc.ApplyOutlineText(context.Background(), "# Summary\n\n## A\n\n* [X](x)\n* [Y](x)\n")
	assert.False(t, res.Success)
	assert.Equal(t, metrics.OutcomeInvalid, res.Outcome)
	assert.Equal(t, 6, res.Line)
	assert.Contains(t, res.Message, "duplicate page slug")
}

func TestApply_WarningsAreReturned(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	res := svc.ApplyOutlineText(context.Background(), "# Summary\n\n## A\nFirst.\nSecond.\n\n* [X](x)\n")
	require.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 5, res.Warnings[0].Line)
}

func TestApply_Idempotent(t *testing.T) {
	st := testutil.TestStore(t)
	svc := summary.NewService(st)
	ctx := context.Background()

	require.True(t, svc.ApplyOutlineText(ctx, guidesText).Success)
	before, err := st.ListPages(ctx, false)
	require.NoError(t, err)

	res := svc.ApplyOutlineText(ctx, guidesText)
	require.True(t, res.Success)
	assert.Zero(t, res.Pages.Created+res.Pages.Updated+res.Pages.Hidden)
	assert.Zero(t, res.Categories.Created+res.Categories.Updated+res.Categories.Hidden)

	after, err := st.ListPages(ctx, false)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Slug, after[i].Slug)
		assert.Equal(t, before[i].OrderIndex, after[i].OrderIndex)
	}
}

func TestPull_HiddenParentsAreSkipped(t *testing.T) {
	st := testutil.TestStore(t)
	svc := summary.NewService(st)
	ctx := context.Background()
	require.True(t, svc.ApplyOutlineText(ctx, guidesText).Success)

	// hide Guides directly; PvP moves to the top level, ordered by its own index
	cats, err := st.ListCategories(ctx, true)
	require.NoError(t, err)
	for _, c := range cats {
		if c.Slug == "guides" {
			require.NoError(t, st.SetCategoryVisibility(ctx, c.ID, false))
		}
	}

	text, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\n## Rules\n\n* [Chat](chat)\n\n## PvP\n\n* [Duels](duels)\n", text)
}

func TestPull_SubPageOfHiddenPageMovesUp(t *testing.T) {
	st := testutil.TestStore(t)
	svc := summary.NewService(st)
	ctx := context.Background()
	require.True(t, svc.ApplyOutlineText(ctx, "# Summary\n\n## A\n\n* [P](p)\n  * [Q](q)\n").Success)

	pages, err := st.ListPages(ctx, true)
	require.NoError(t, err)
	for _, p := range pages {
		if p.Slug == "p" {
			require.NoError(t, st.SetPageVisibility(ctx, p.ID, false))
		}
	}

	text, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\n## A\n\n* [Q](q)\n", text)
}

func TestPull_EmptyStore(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	text, err := svc.PullCurrentOutlineText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n", text)
}

func TestPull_UsesCacheAndApplyInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis("redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	svc := summary.NewService(testutil.TestStore(t), summary.WithCache(c))
	ctx := context.Background()

	require.True(t, svc.ApplyOutlineText(ctx, "# Summary\n\n## A\n").Success)
	first, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	cached, err := mr.Get("craftwiki:outline")
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	require.True(t, svc.ApplyOutlineText(ctx, "# Summary\n\n## B\n").Success)
	assert.False(t, mr.Exists("craftwiki:outline"))

	second, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\n## B\n", second)
}

func TestApply_PublishesOutlineEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := summary.NewService(testutil.TestStore(t), summary.WithPublisher(pub))
	ctx := context.Background()

	svc.ApplyOutlineText(ctx, "# Summary\n\n* [Bad](bad)\n")
	assert.Empty(t, pub.list(), "invalid text must not publish")

	require.True(t, svc.ApplyOutlineText(ctx, "# Summary\n\n## A\n").Success)
	assert.Equal(t, []string{sse.ChangeOutline + ":"}, pub.list())
}

func TestPageContent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := summary.NewService(testutil.TestStore(t), summary.WithPublisher(pub))
	ctx := context.Background()
	require.True(t, svc.ApplyOutlineText(ctx, "# Summary\n\n## A\n\n* [Intro](intro)\n").Success)

	p, err := svc.GetPage(ctx, "intro")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Content, "# Intro"))
	assert.Equal(t, checksum.Sum([]byte(p.Content)), p.Checksum)

	_, err = svc.UpdatePageContent(ctx, "intro", "new body", "stale")
	require.ErrorIs(t, err, apperr.ErrConflict)

	updated, err := svc.UpdatePageContent(ctx, "intro", "new body", p.Checksum)
	require.NoError(t, err)
	assert.Equal(t, "new body", updated.Content)
	assert.Contains(t, pub.list(), sse.ChangePage+":intro")

	_, err = svc.UpdatePageContent(ctx, "missing", "x", "")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// structural sync keeps the edited body
	require.True(t, svc.ApplyOutlineText(ctx, "# Summary\n\n## A\n\n* [Introduction](intro)\n").Success)
	p, err = svc.GetPage(ctx, "intro")
	require.NoError(t, err)
	assert.Equal(t, "new body", p.Content)
	assert.Equal(t, "Introduction", p.Title)
}

func TestSearchPages(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	ctx := context.Background()
	require.True(t, svc.ApplyOutlineText(ctx, "# Summary\n\n## A\n\n* [Nether Portal](nether)\n* [Farming](farming)\n").Success)

	hits, err := svc.SearchPages(ctx, "nether", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "nether", hits[0].Slug)
}

// partialStore fails every page insert for one slug.
type partialStore struct {
	*store.DB
	slug string
}

func TestApply_PartialFailure(t *testing.T) {
	st := &partialStore{DB: testutil.TestStore(t), slug: "broken"}
	svc := summary.NewService(st)

	res := svc.ApplyOutlineText(context.Background(), "# Summary\n\n## A\n\n* [Broken](broken)\n* [Fine](fine)\n")
	assert.False(t, res.Success)
	assert.Equal(t, metrics.OutcomePartial, res.Outcome)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `"broken"`)
	assert.Equal(t, 1, res.Pages.Created)
}

func (p *partialStore) UpsertPage(ctx context.Context, pg models.Page) (int64, error) {
	if pg.Slug == p.slug {
		return 0, assert.AnError
	}
	return p.DB.UpsertPage(ctx, pg)
}

// pausingStore blocks the first armed ListCategories call until release is
// closed, so an apply can run while a pull is reading rows.
type pausingStore struct {
	*store.DB
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (p *pausingStore) ListCategories(ctx context.Context, visibleOnly bool) ([]models.Category, error) {
	cats, err := p.DB.ListCategories(ctx, visibleOnly)
	if p.armed.CompareAndSwap(true, false) {
		close(p.entered)
		<-p.release
	}
	return cats, err
}

func TestPull_ConcurrentApplyDoesNotLeaveStaleCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis("redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	st := &pausingStore{
		DB:      testutil.TestStore(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := summary.NewService(st, summary.WithCache(c))
	ctx := context.Background()

	st.armed.Store(true)
	pulled := make(chan string, 1)
	go func() {
		text, err := svc.PullCurrentOutlineText(ctx)
		assert.NoError(t, err)
		pulled <- text
	}()
	<-st.entered

	const want = "# Summary\n\n## Guides\n\n* [Intro](intro)\n"
	require.True(t, svc.ApplyOutlineText(ctx, want).Success)
	close(st.release)
	assert.Equal(t, "# Summary\n", <-pulled, "the slow pull still sees the rows it read")

	text, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, text)
}

func TestApplyIfMatch_Conflict(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	ctx := context.Background()

	base, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	tag := checksum.Sum([]byte(base))

	require.True(t, svc.ApplyOutlineTextIfMatch(ctx, "# Summary\n\n## A\n", tag).Success)

	res := svc.ApplyOutlineTextIfMatch(ctx, "# Summary\n\n## B\n", tag)
	assert.False(t, res.Success)
	assert.Equal(t, metrics.OutcomeConflict, res.Outcome)

	text, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\n## A\n", text)
}

func TestApplyIfMatch_ConcurrentWritersOneWins(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	ctx := context.Background()

	base, err := svc.PullCurrentOutlineText(ctx)
	require.NoError(t, err)
	tag := checksum.Sum([]byte(base))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for _, title := range []string{"Red", "Blue", "Green", "Gold"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := svc.ApplyOutlineTextIfMatch(ctx, "# Summary\n\n## "+title+"\n", tag)
			switch res.Outcome {
			case metrics.OutcomeSuccess:
				successes.Add(1)
			case metrics.OutcomeConflict:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(3), conflicts.Load())
}
