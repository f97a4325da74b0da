package metrics

import "expvar"

var (
	TradesExecuted = expvar.NewInt("trades_executed")
	TradesFailed   = expvar.NewInt("trades_failed")
	TradesSkipped  = expvar.NewInt("trades_skipped")
	FetchErrors    = expvar.NewInt("fetch_errors")
	EventsOpened   = expvar.NewInt("events_opened")
	EventsClosed   = expvar.NewInt("events_closed")
	EventsResized  = expvar.NewInt("events_resized")
	SnapshotSaves  = expvar.NewInt("snapshot_saves")
	SnapshotLoads  = expvar.NewInt("snapshot_loads")
	StreamKicks    = expvar.NewInt("stream_kicks")
)
