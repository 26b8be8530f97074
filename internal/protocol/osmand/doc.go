// Package osmand formats position reports in the OsmAnd query-string
// protocol understood by Traccar-compatible tracking servers.
package osmand
