package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	logx "firstsync/pkg/logx"
)

type listResponse struct {
	Results []MarketingEvent `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// ListAll pages through every marketing event on the account.
func (c *Client) ListAll(ctx context.Context) ([]MarketingEvent, error) {
	var events []MarketingEvent
	after := ""
	pages := 0

	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageLimit))
		if after != "" {
			q.Set("after", after)
		}

		var page listResponse
		if err := c.do(ctx, http.MethodGet, eventsPath, q, nil, &page); err != nil {
			return nil, fmt.Errorf("list marketing events (page %d): %w", pages+1, err)
		}
		events = append(events, page.Results...)
		pages++

		if page.Paging == nil || page.Paging.Next == nil || page.Paging.Next.After == "" {
			break
		}
		after = page.Paging.Next.After
	}

	c.log.Debug("marketing events listed", logx.Int("count", len(events)), logx.Int("pages", pages))
	return events, nil
}

type batchInput struct {
	Inputs []MarketingEventInput `json:"inputs"`
}

// BatchUpsert creates or updates events in chunks of the configured batch
// size. A failed chunk does not stop the remaining chunks; the first error
// is returned after all chunks were attempted.
func (c *Client) BatchUpsert(ctx context.Context, inputs []MarketingEventInput) error {
	if len(inputs) == 0 {
		return nil
	}

	var firstErr error
	for start := 0; start < len(inputs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		chunk := inputs[start:end]

		if err := c.do(ctx, http.MethodPost, upsertPath, nil, batchInput{Inputs: chunk}, nil); err != nil {
			c.log.Error("batch upsert chunk failed",
				logx.Int("offset", start),
				logx.Int("size", len(chunk)),
				logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("batch upsert (offset %d): %w", start, err)
			}
			if ctx.Err() != nil {
				return firstErr
			}
			continue
		}
		c.log.Debug("batch upsert chunk ok", logx.Int("offset", start), logx.Int("size", len(chunk)))
	}
	return firstErr
}
