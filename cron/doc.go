// Package cron runs periodic maintenance for the status store.
//
// A [Janitor] sweeps status records older than a maximum age on a cron
// schedule. Schedules are standard 5-field cron expressions
// ("0 3 * * *") or descriptors such as "@every 1h" and "@daily".
//
//	j, err := cron.NewJanitor(store, registry, "@every 1h", 24*time.Hour, logger)
//	if err != nil {
//	    return err
//	}
//	_ = j.Start(ctx)
//	defer j.Stop(ctx)
//
// The [ext.SweepCompleted] extension hook fires after every sweep.
package cron
