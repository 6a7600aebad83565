// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import "expvar"

var (
	muxMetrics = new(expvar.Map)

	channelsActiveGauge = new(expvar.Int)
	monitorsActiveGauge = new(expvar.Int)
	datagramsReadCount  = new(expvar.Int)
	bytesQueued         = new(expvar.Int)
	messagesEmitted     = new(expvar.Int)
	closedEmitted       = new(expvar.Int)
	acceptsCount        = new(expvar.Int)
	engineTicks         = new(expvar.Int)
)

func init() {
	muxMetrics.Set("channels_active", channelsActiveGauge)
	muxMetrics.Set("monitors_active", monitorsActiveGauge)
	muxMetrics.Set("datagrams_read", datagramsReadCount)
	muxMetrics.Set("bytes_queued", bytesQueued)
	muxMetrics.Set("messages_emitted", messagesEmitted)
	muxMetrics.Set("closed_emitted", closedEmitted)
	muxMetrics.Set("accepts", acceptsCount)
	muxMetrics.Set("engine_ticks", engineTicks)
}

// Metrics returns a map of exported channel metrics for use with the expvar
// package. This map is shared among all muxes created by NewMux.
//
// The caller is responsible for publishing the metrics to the exporter via
// expvar.Publish or similar.
func Metrics() *expvar.Map { return muxMetrics }
