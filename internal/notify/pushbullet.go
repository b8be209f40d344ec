// Package notify sends Pushbullet notifications for the run-level
// events a sync cares about, adapted from
// internal/clients/notifications/pushbullet.go's note-push wrapper
// around xconstruct/go-pushbullet.
package notify

import (
	"fmt"

	"github.com/xconstruct/go-pushbullet"

	"github.com/torrents3/torrents3/internal/logging"
)

// Notifier is implemented by PushbulletClient and by NoOp, so callers
// that run without a configured API token pay no branch cost at the
// call site.
type Notifier interface {
	SyncStarted(torrentName string)
	SyncCompleted(torrentName string, fileErrors int)
	FileUploadFailed(fileName, torrentName, reason string)
	LowFreeSpace(torrentName string, freeBytes, budgetBytes int64)
}

// NoOp is the Notifier used when no Pushbullet token is configured.
type NoOp struct{}

func (NoOp) SyncStarted(string)                      {}
func (NoOp) SyncCompleted(string, int)                {}
func (NoOp) FileUploadFailed(string, string, string)  {}
func (NoOp) LowFreeSpace(string, int64, int64)        {}

// PushbulletClient implements Notifier over a Pushbullet account.
type PushbulletClient struct {
	pb     *pushbullet.Client
	logger *logging.Logger
}

func NewPushbulletClient(apiToken string, logger *logging.Logger) *PushbulletClient {
	return &PushbulletClient{pb: pushbullet.New(apiToken), logger: logger}
}

func (c *PushbulletClient) sendPush(title, body string) {
	if err := c.pb.PushNote("", title, body); err != nil {
		c.logger.Error("failed to send Pushbullet notification:", err)
	}
}

func (c *PushbulletClient) SyncStarted(torrentName string) {
	c.sendPush("torrents3 sync started", fmt.Sprintf("Starting sync for %s", torrentName))
}

func (c *PushbulletClient) SyncCompleted(torrentName string, fileErrors int) {
	if fileErrors == 0 {
		c.sendPush("torrents3 sync complete", fmt.Sprintf("Finished syncing %s", torrentName))
		return
	}
	c.sendPush("torrents3 sync complete with errors",
		fmt.Sprintf("Finished syncing %s with %d file error(s)", torrentName, fileErrors))
}

func (c *PushbulletClient) FileUploadFailed(fileName, torrentName, reason string) {
	c.sendPush("torrents3 upload failed",
		fmt.Sprintf("%s (%s): %s", fileName, torrentName, reason))
}

func (c *PushbulletClient) LowFreeSpace(torrentName string, freeBytes, budgetBytes int64) {
	c.sendPush("torrents3 low disk space",
		fmt.Sprintf("%s: %d bytes free, scratch budget is %d bytes", torrentName, freeBytes, budgetBytes))
}

// Test verifies the API token is valid, the way
// PushbulletClient.Test did in the teacher repo.
func (c *PushbulletClient) Test() error {
	if _, err := c.pb.Me(); err != nil {
		return fmt.Errorf("pushbullet authentication failed: %w", err)
	}
	return nil
}
