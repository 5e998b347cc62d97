/*
Package instruments runs the external instrumentation process that drives
the simulator and the application under test.

A Manager launches one process per session under a pseudo-terminal and
exposes a Channel for exchanging Messages with it. Lines the process
prints with the "ios-driver:" prefix are decoded as JSON messages; every
other line is captured into the session's log.

	mgr := instruments.NewManager(port, cfg, logger)
	if err := mgr.StartSession(ctx, opts); err != nil {
		return err
	}
	defer mgr.Stop(ctx)
*/
package instruments
