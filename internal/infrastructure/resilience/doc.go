/*
Package resilience provides the circuit breaker guarding calls to the
instrumentation process's native automation endpoint.

A dead or wedged instrumentation process otherwise costs every native
command a full transport timeout; once the breaker opens, callers fail
immediately until the half-open probe succeeds.

# Usage

	breaker := resilience.New("native-driver", resilience.Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var cmdErr *CommandError
			return err == nil || errors.As(err, &cmdErr)
		},
	})

	resp, err := resilience.Call(breaker, func() (*Response, error) {
		return client.send(ctx, req)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
