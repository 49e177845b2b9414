package extract_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/fieldbot/internal/browser/fake"
	"github.com/slok/fieldbot/internal/extract"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/throttle"
)

const tablePage = `<html><body>
<table id="issuetable"><tbody>
<tr class="issuerow" data-issuekey="PRJ-1">
  <td class="issuekey"><a href="/browse/PRJ-1">PRJ-1</a></td>
  <td class="summary">Fix the login flow</td>
  <td class="fixVersions">v2025-03-31</td>
  <td class="assignee">ana</td>
</tr>
<tr class="issuerow" data-issuekey="PRJ-2">
  <td class="issuekey"><a href="/browse/PRJ-2">PRJ-2</a></td>
  <td class="summary">Broken CSV export</td>
  <td class="fixVersions"></td>
</tr>
<tr class="issuerow">
  <td class="summary">Row without any key</td>
</tr>
</tbody></table>
</body></html>`

const boardPage = `<html><body>
<div class="board">
  <div class="board-card" data-issue-key="PRJ-10">
    <a class="card-key" href="/browse/PRJ-10">PRJ-10</a>
    <div class="card-summary">Rework billing screen</div>
    <span class="card-version">v2025-04-30</span>
    <span data-field="points">5</span>
  </div>
  <div class="board-card">
    <span class="card-key">PRJ-11</span>
    <div class="card-summary">Key only in the badge</div>
  </div>
</div>
</body></html>`

const gridPage = `<html><body>
<div class="grid-view">
  <div class="grid-row" data-item-key="EPIC-1">
    <span class="grid-key"><a href="/browse/EPIC-1">EPIC-1</a></span>
    <span class="grid-title">Parent epic</span>
    <span class="grid-release">v2025-06-30</span>
    <div class="grid-row" data-item-key="PRJ-20">
      <span class="grid-key"><a href="/browse/PRJ-20">PRJ-20</a></span>
      <span class="grid-title">Child story</span>
    </div>
  </div>
</div>
</body></html>`

const mixedLayoutsPage = `<html><body>
<table id="issuetable"><tbody>
<tr class="issuerow" data-issuekey="PRJ-1">
  <td class="issuekey">PRJ-1</td>
  <td class="summary">From the table</td>
</tr>
</tbody></table>
<div class="board-card" data-issue-key="PRJ-10">
  <div class="card-summary">From the board</div>
</div>
</body></html>`

const emptyTableWithBoardPage = `<html><body>
<table id="issuetable"><tbody></tbody></table>
<div class="board-card" data-issue-key="PRJ-10">
  <div class="card-summary">From the board</div>
</div>
</body></html>`

const noItemsPage = `<html><body><p>Nothing to see here.</p></body></html>`

func newTestService(t *testing.T, page string) (*extract.Service, *fake.Session) {
	t.Helper()

	session, err := fake.NewSession(fake.SessionConfig{
		Pages:    map[string]string{"https://tracker.test/issues": page},
		StartURL: "https://tracker.test/issues",
	})
	require.NoError(t, err)

	return newServiceForSession(t, session), session
}

func newServiceForSession(t *testing.T, session *fake.Session) *extract.Service {
	t.Helper()

	throttler, err := throttle.NewThrottler(throttle.Config{})
	require.NoError(t, err)

	service, err := extract.NewService(extract.ServiceConfig{
		Session:        session,
		BaseURL:        "https://tracker.test",
		ListURL:        "https://tracker.test/issues",
		Throttler:      throttler,
		LoadingTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	return service
}

func TestServiceExtract(t *testing.T) {
	tests := map[string]struct {
		page     string
		expItems []model.WorkItem
	}{
		"An issue table should be extracted row by row, dropping rows without a key.": {
			page: tablePage,
			expItems: []model.WorkItem{
				{
					Key:                "PRJ-1",
					Title:              "Fix the login flow",
					TargetVersionLabel: "v2025-03-31",
					URL:                "https://tracker.test/browse/PRJ-1",
					ExtraFields:        map[string]string{"assignee": "ana"},
				},
				{
					Key:   "PRJ-2",
					Title: "Broken CSV export",
					URL:   "https://tracker.test/browse/PRJ-2",
				},
			},
		},

		"Board cards should be extracted with the key taken from the attribute or the badge text.": {
			page: boardPage,
			expItems: []model.WorkItem{
				{
					Key:                "PRJ-10",
					Title:              "Rework billing screen",
					TargetVersionLabel: "v2025-04-30",
					URL:                "https://tracker.test/browse/PRJ-10",
					ExtraFields:        map[string]string{"points": "5"},
				},
				{
					Key:   "PRJ-11",
					Title: "Key only in the badge",
				},
			},
		},

		"Grid rows should be extracted including rows nested inside other rows.": {
			page: gridPage,
			expItems: []model.WorkItem{
				{
					Key:                "EPIC-1",
					Title:              "Parent epic",
					TargetVersionLabel: "v2025-06-30",
					URL:                "https://tracker.test/browse/EPIC-1",
				},
				{
					Key:   "PRJ-20",
					Title: "Child story",
					URL:   "https://tracker.test/browse/PRJ-20",
				},
			},
		},

		"When several layouts are present the issue table should win.": {
			page: mixedLayoutsPage,
			expItems: []model.WorkItem{
				{Key: "PRJ-1", Title: "From the table"},
			},
		},

		"An empty issue table should fall through to the next layout.": {
			page: emptyTableWithBoardPage,
			expItems: []model.WorkItem{
				{Key: "PRJ-10", Title: "From the board"},
			},
		},

		"A page without any known layout should return no items and no error.": {
			page:     noItemsPage,
			expItems: []model.WorkItem{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			service, _ := newTestService(t, test.page)

			items, err := service.Extract(context.Background())

			assert.NoError(err)
			assert.Equal(test.expItems, items)
		})
	}
}

func TestServiceExtractNavigatesToListPage(t *testing.T) {
	t.Run("A session parked on another page should be sent back to the list before extracting.", func(t *testing.T) {
		assert := assert.New(t)

		session, err := fake.NewSession(fake.SessionConfig{
			Pages: map[string]string{
				"https://tracker.test/issues":       mixedLayoutsPage,
				"https://tracker.test/browse/PRJ-1": `<html><body><h1>PRJ-1</h1></body></html>`,
			},
			StartURL: "https://tracker.test/browse/PRJ-1",
		})
		require.NoError(t, err)
		service := newServiceForSession(t, session)

		items, err := service.Extract(context.Background())

		assert.NoError(err)
		assert.Equal([]model.WorkItem{{Key: "PRJ-1", Title: "From the table"}}, items)
		assert.Contains(session.Interactions(), "navigate https://tracker.test/issues")
	})

	t.Run("A session already on the list page should not navigate again.", func(t *testing.T) {
		assert := assert.New(t)

		service, session := newTestService(t, mixedLayoutsPage)

		_, err := service.Extract(context.Background())

		assert.NoError(err)
		assert.NotContains(session.Interactions(), "navigate https://tracker.test/issues")
	})
}

func TestServiceExtractLoadingIndicator(t *testing.T) {
	t.Run("A loading indicator that never goes away should not block extraction forever.", func(t *testing.T) {
		assert := assert.New(t)

		page := `<html><body>
<div class="spinner">Loading...</div>
<table id="issuetable"><tbody>
<tr class="issuerow" data-issuekey="PRJ-1"><td class="summary">Still there</td></tr>
</tbody></table>
</body></html>`
		service, _ := newTestService(t, page)

		start := time.Now()
		items, err := service.Extract(context.Background())

		assert.NoError(err)
		assert.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
		assert.Equal([]model.WorkItem{{Key: "PRJ-1", Title: "Still there"}}, items)
	})

	t.Run("A hidden loading indicator should not delay extraction.", func(t *testing.T) {
		assert := assert.New(t)

		page := `<html><body>
<div class="spinner" style="display: none">Loading...</div>
<table id="issuetable"><tbody>
<tr class="issuerow" data-issuekey="PRJ-1"><td class="summary">Ready</td></tr>
</tbody></table>
</body></html>`
		service, _ := newTestService(t, page)

		start := time.Now()
		items, err := service.Extract(context.Background())

		assert.NoError(err)
		assert.Less(time.Since(start), 40*time.Millisecond)
		assert.Equal([]model.WorkItem{{Key: "PRJ-1", Title: "Ready"}}, items)
	})
}

func TestServiceExtractSessionGone(t *testing.T) {
	t.Run("Extracting from a closed browser session should fail.", func(t *testing.T) {
		assert := assert.New(t)

		service, session := newTestService(t, noItemsPage)
		require.NoError(t, session.Close(context.Background()))

		_, err := service.Extract(context.Background())

		assert.Error(err)
	})
}
