// Package pebblestore wraps Pebble with an fsync policy, batch helpers and
// prefix scans. The event log, group cursors, pending entries and consumer
// heartbeats all live in one store.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/store",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Update(ctx, func(b *pebble.Batch) error {
//	    return b.Set([]byte("k"), []byte("v"), nil)
//	})
//	_ = db.ScanPrefix([]byte("log/"), func(k, v []byte) bool { return true })
package pebblestore
