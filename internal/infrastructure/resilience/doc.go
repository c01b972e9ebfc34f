/*
Package resilience provides the circuit breaker guarding outbound host calls.

Guest fetches go through one breaker per client. When the upstream keeps
failing the breaker opens and further fetches reject immediately with
ErrCircuitOpen instead of tying up the event loop's pending operations.

# Usage

	breaker := resilience.New("fetch", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})

	body, err := resilience.Do(breaker, func() ([]byte, error) {
		return download(ctx)
	})

When success is only known after inspecting a result, use Allow:

	done, err := breaker.Allow()
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	done(err == nil && resp.StatusCode < 500)

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
