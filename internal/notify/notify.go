// Package notify broadcasts plan events to the Shoutrrr URLs configured in
// app settings (ntfy, Discord, etc.).
//
// Delivery is fire-and-forget: sends run on a goroutine and failures are
// logged, never returned to the action that triggered them.
package notify

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/containrrr/shoutrrr"
	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/models"
)

// SendFunc delivers one message to one Shoutrrr URL.
type SendFunc func(rawURL, message string) error

// Broadcaster sends notifications to the configured broadcast URLs.
type Broadcaster struct {
	db      *sql.DB
	send    SendFunc
	metrics *metrics.Manager
	wg      sync.WaitGroup
}

// NewBroadcaster returns a Broadcaster reading URLs from db. m may be nil.
func NewBroadcaster(db *sql.DB, m *metrics.Manager) *Broadcaster {
	return &Broadcaster{db: db, send: shoutrrr.Send, metrics: m}
}

// WithSender replaces the delivery function. Used by tests.
func (b *Broadcaster) WithSender(send SendFunc) *Broadcaster {
	b.send = send
	return b
}

// PlanReady announces a newly activated plan.
func (b *Broadcaster) PlanReady(p *models.Plan) {
	if p == nil {
		return
	}
	who := fmt.Sprintf("user %d", p.UserID)
	if u, err := models.GetUserByID(b.db, p.UserID); err == nil {
		who = u.Username
	}
	body := fmt.Sprintf("%s: new %s plan %q is ready for %s.", models.GetAppName(b.db), p.Category, p.Title, who)
	b.Broadcast(body)
}

// Broadcast sends body to every configured URL without blocking.
func (b *Broadcaster) Broadcast(body string) {
	urls := models.GetNotifyURLs(b.db)
	if len(urls) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, u := range urls {
			if err := b.send(u, body); err != nil {
				log.Warnf("notify: broadcast send failed for url %q: %v", maskURL(u), err)
				b.metrics.ObserveNotification("failed")
				continue
			}
			b.metrics.ObserveNotification("sent")
		}
	}()
}

// Wait blocks until in-flight broadcasts finish.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

// TestConnection sends a test message to each broadcast URL synchronously.
func (b *Broadcaster) TestConnection() error {
	urls := models.GetNotifyURLs(b.db)
	if len(urls) == 0 {
		return fmt.Errorf("no notification channels configured (set notify.urls)")
	}

	var errs []string
	msg := models.GetAppName(b.db) + " test: if you see this, notifications are working!"
	for _, u := range urls {
		if err := b.send(u, msg); err != nil {
			errs = append(errs, fmt.Sprintf("Broadcast %s: %v", maskURL(u), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// maskURL masks credentials in a Shoutrrr URL for safe logging.
func maskURL(u string) string {
	if len(u) <= 5 {
		return "••••"
	}
	if len(u) <= 15 {
		return u[:5] + "••••"
	}
	return u[:15] + "••••"
}
