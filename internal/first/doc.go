// Package first talks to FIRST's public APIs: the seasons search endpoint
// and the Elasticsearch events index. It also builds HubSpot marketing-event
// payloads from raw event documents.
package first
