package client

import (
	"context"

	"harp/internal/api"
)

// Wait polls a job until it reaches done or error. Transient failures
// (connection errors, 5xx) are retried after the backoff interval; a 404 ends
// the wait because the job is gone. onUpdate, when set, is called each time
// the status or message changes.
func (c *Client) Wait(ctx context.Context, id string, onUpdate func(api.StatusResponse)) (api.StatusResponse, error) {
	var last api.StatusResponse
	seen := false
	for {
		status, err := c.Status(ctx, id)
		delay := c.pollInterval
		switch {
		case err == nil:
			if onUpdate != nil && (!seen || status.Status != last.Status || status.Message != last.Message) {
				onUpdate(status)
			}
			last, seen = status, true
			if status.Terminal() {
				return status, nil
			}
		case ctx.Err() != nil:
			return last, ctx.Err()
		case isTransient(err):
			delay = c.backoffInterval
		default:
			return last, err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return last, err
		}
	}
}
