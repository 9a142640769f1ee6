// Package watch follows a running pushdeploy server's /events stream and
// renders deploy activity as one line per event.
package watch

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/pushdeploy/internal/events"
)

// Stream connects to url (the server's /events route) and calls fn for each
// event until the connection drops or ctx is cancelled. A positive lastID
// is sent as Last-Event-ID so the server replays anything newer.
// It returns the ID of the last event delivered.
func Stream(ctx context.Context, client *http.Client, url string, lastID int64, fn func(events.Event)) (int64, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return lastID, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	resp, err := client.Do(req)
	if err != nil {
		return lastID, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return lastID, fmt.Errorf("unexpected status from %s: %s", url, resp.Status)
	}

	type frame struct {
		id   int64
		typ  string
		data string
	}
	var current frame

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current.data != "" {
				fn(events.Event{
					ID:   current.id,
					Type: current.typ,
					At:   time.Now(),
					Data: []byte(current.data),
				})
				if current.id > lastID {
					lastID = current.id
				}
			}
			current = frame{}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.id = id
			}
		case strings.HasPrefix(line, "event: "):
			current.typ = line[7:]
		case strings.HasPrefix(line, "data: "):
			current.data = line[6:]
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return lastID, err
	}
	return lastID, nil
}

// Follow calls Stream repeatedly, resuming from the last seen event after
// each disconnect, until ctx is cancelled.
func Follow(ctx context.Context, client *http.Client, url string, retry time.Duration, fn func(events.Event), onErr func(error)) {
	var lastID int64
	for {
		id, err := Stream(ctx, client, url, lastID, fn)
		lastID = id
		if ctx.Err() != nil {
			return
		}
		if err != nil && onErr != nil {
			onErr(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
