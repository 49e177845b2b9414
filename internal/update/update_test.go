package update_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/fieldbot/internal/browser/fake"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/retry"
	"github.com/slok/fieldbot/internal/throttle"
	"github.com/slok/fieldbot/internal/update"
)

const (
	itemURL = "https://tracker.test/browse/PRJ-1"
	listURL = "https://tracker.test/issues"
)

const itemPage = `<html><body>
<h1>PRJ-1</h1>
<span id="duedate-val">2025-02-01</span>
<button id="duedate-edit">edit</button>
</body></html>`

const editorPage = `<html><body>
<div class="edit-dialog">
  <input id="duedate" name="duedate" value="2025-02-01">
  <button data-testid="save-button">Save</button>
</div>
</body></html>`

const savedPage = `<html><body>
<h1>PRJ-1</h1>
<span id="duedate-val">2025-01-17</span>
</body></html>`

const listPage = `<html><body><p>Issue list</p></body></html>`

const noEditControlPage = `<html><body>
<h1>PRJ-1</h1>
<span id="duedate-val">2025-02-01</span>
</body></html>`

const editorNoInputPage = `<html><body>
<div class="edit-dialog">
  <button data-testid="save-button">Save</button>
</div>
</body></html>`

const editorNoSavePage = `<html><body>
<div class="edit-dialog">
  <input id="duedate" name="duedate" value="2025-02-01">
</div>
</body></html>`

func validRequest() update.Request {
	return update.Request{
		Item:     model.WorkItem{Key: "PRJ-1", URL: itemURL},
		FieldID:  "duedate",
		NewValue: "2025-01-17",
	}
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          5 * time.Millisecond,
	}
}

// newItemSession scripts an item page whose edit control opens the field
// editor when clicked.
func newItemSession(t *testing.T, startURL string) *fake.Session {
	t.Helper()

	session, err := fake.NewSession(fake.SessionConfig{
		Pages: map[string]string{
			itemURL: itemPage,
			listURL: listPage,
		},
		StartURL: startURL,
	})
	require.NoError(t, err)

	session.OnClick("#duedate-edit", func() {
		require.NoError(t, session.SetPage(itemURL, editorPage))
	})

	return session
}

func newTestService(t *testing.T, session *fake.Session) *update.Service {
	t.Helper()

	throttler, err := throttle.NewThrottler(throttle.Config{})
	require.NoError(t, err)

	service, err := update.NewService(update.ServiceConfig{
		Session:            session,
		Throttler:          throttler,
		RetryPolicy:        fastPolicy(),
		DialogCloseTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	return service
}

func TestNewService(t *testing.T) {
	session, err := fake.NewSession(fake.SessionConfig{})
	require.NoError(t, err)

	tests := map[string]struct {
		config update.ServiceConfig
		expErr bool
	}{
		"A config without a session should fail.": {
			config: update.ServiceConfig{},
			expErr: true,
		},

		"A config with a session should work.": {
			config: update.ServiceConfig{Session: session},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			_, err := update.NewService(test.config)

			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestServiceUpdateField(t *testing.T) {
	t.Run("Updating a field should open the editor, type the value, save and confirm the close.", func(t *testing.T) {
		assert := assert.New(t)

		session := newItemSession(t, itemURL)
		var savedValue string
		session.OnClick("[data-testid=save-button]", func() {
			v, err := session.Value("#duedate")
			require.NoError(t, err)
			savedValue = v
			require.NoError(t, session.SetPage(itemURL, savedPage))
		})
		service := newTestService(t, session)

		outcome := service.UpdateField(context.Background(), validRequest())

		assert.Equal(model.FieldUpdateOutcome{
			Succeeded:     true,
			ItemKey:       "PRJ-1",
			FieldName:     "duedate",
			PriorValue:    "2025-02-01",
			NewValue:      "2025-01-17",
			SaveConfirmed: true,
		}, outcome)
		assert.Equal("2025-01-17", savedValue)
	})

	t.Run("Updating from another page should navigate to the item first.", func(t *testing.T) {
		assert := assert.New(t)

		session := newItemSession(t, listURL)
		session.OnClick("[data-testid=save-button]", func() {
			require.NoError(t, session.SetPage(itemURL, savedPage))
		})
		service := newTestService(t, session)

		outcome := service.UpdateField(context.Background(), validRequest())

		assert.True(outcome.Succeeded)
		current, err := session.CurrentURL(context.Background())
		assert.NoError(err)
		assert.Equal(itemURL, current)
		assert.Contains(session.Interactions(), "navigate "+itemURL)
	})

	t.Run("A transient click failure should be retried until it works.", func(t *testing.T) {
		assert := assert.New(t)

		session := newItemSession(t, itemURL)
		session.OnClick("[data-testid=save-button]", func() {
			require.NoError(t, session.SetPage(itemURL, savedPage))
		})
		session.InjectFailure("click", 1, errors.New("click intercepted"))
		service := newTestService(t, session)

		outcome := service.UpdateField(context.Background(), validRequest())

		assert.True(outcome.Succeeded)
		editClicks := 0
		for _, interaction := range session.Interactions() {
			if interaction == "click #duedate-edit" {
				editClicks++
			}
		}
		assert.Equal(2, editClicks)
	})

	t.Run("An edit surface that never closes should leave the save unconfirmed but successful.", func(t *testing.T) {
		assert := assert.New(t)

		session := newItemSession(t, itemURL)
		service := newTestService(t, session)

		start := time.Now()
		outcome := service.UpdateField(context.Background(), validRequest())

		assert.True(outcome.Succeeded)
		assert.False(outcome.SaveConfirmed)
		assert.Empty(outcome.FailureReason)
		assert.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
	})
}

func TestServiceUpdateFieldFailures(t *testing.T) {
	tests := map[string]struct {
		req       func() update.Request
		setup     func(t *testing.T, session *fake.Session)
		expReason string
	}{
		"A request without a field id should fail before touching the page.": {
			req: func() update.Request {
				req := validRequest()
				req.FieldID = ""
				return req
			},
			expReason: "invalid request",
		},

		"An item without a page URL should fail.": {
			req: func() update.Request {
				req := validRequest()
				req.Item.URL = ""
				return req
			},
			expReason: "item has no page URL",
		},

		"A page without the edit control should fail after retrying.": {
			req: validRequest,
			setup: func(t *testing.T, session *fake.Session) {
				require.NoError(t, session.SetPage(itemURL, noEditControlPage))
			},
			expReason: "could not open editor",
		},

		"An editor without the field input should fail.": {
			req: validRequest,
			setup: func(t *testing.T, session *fake.Session) {
				session.OnClick("#duedate-edit", func() {
					require.NoError(t, session.SetPage(itemURL, editorNoInputPage))
				})
			},
			expReason: "could not find field",
		},

		"An editor without a save control should fail.": {
			req: validRequest,
			setup: func(t *testing.T, session *fake.Session) {
				session.OnClick("#duedate-edit", func() {
					require.NoError(t, session.SetPage(itemURL, editorNoSavePage))
				})
			},
			expReason: "could not save",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			session := newItemSession(t, itemURL)
			if test.setup != nil {
				test.setup(t, session)
			}
			service := newTestService(t, session)

			outcome := service.UpdateField(context.Background(), test.req())

			assert.False(outcome.Succeeded)
			assert.Contains(outcome.FailureReason, test.expReason)
			assert.False(outcome.SaveConfirmed)
		})
	}
}
