package poller

const sweepClosedSQL = `DELETE FROM jc_hc_curent WHERE xdts IS NOT NULL AND trim(xdts) <> ''`

const sweepAgedSQL = `DELETE FROM jc_hc_curent WHERE substr(ad_ts, 1, 14) < $1`

func sweepClosed() Stage {
	return SQLStage("sweep_closed", PhaseSweep, sweepClosedSQL, nil)
}

func sweepAged() Stage {
	return SQLStage("sweep_aged", PhaseSweep, sweepAgedSQL, func(w Window) []any {
		return []any{w.Expiry}
	})
}
