/*
Package session is the lifecycle core of the automation server.

A Session binds one device, one application under test and one
instrumentation process. Construction resolves the application and SDK and
fails with a *NotCreatedError before anything is allocated. Start launches
instrumentation and attaches the native driver; the web inspector is built
on first use. Stop and ForceStop tear the session down, and ForceStop is
registered with the process-wide shutdown hooks so it runs on termination.

Each session owns one configuration store per working Mode.

Example Usage:

	mgr := session.NewManager(deps)
	s, err := mgr.Create(ctx, caps)
	if err != nil {
		return err
	}
	s.SetMode(session.Web)
	s.Conf(session.Web).Set(configuration.OptionImplicitWait, 5000)
	defer mgr.Delete(ctx, s.ID().String())
*/
package session
