/*
Package metrics exposes request, transfer and pool metrics in
Prometheus format.

The collector registers its instruments on a private registry and
serves them from a background HTTP endpoint:

	collector, err := metrics.NewCollector(metrics.NewDefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	collector.Start(ctx)
	defer collector.Stop(ctx)

	collector.RequestStarted()
	start := time.Now()
	resp, err := conn.Put(bucket, key, data, opts)
	collector.RecordRequest("put", "up", time.Since(start), int64(len(data)), err)

Instruments:

	s3pipe_requests_total{op, outcome}
	s3pipe_request_duration_seconds{op}
	s3pipe_transfer_bytes_total{direction}
	s3pipe_errors_total{op, code}
	s3pipe_pending_requests
	s3pipe_pool_idle_connections
	s3pipe_pool_total_connections

A collector built with Enabled set to false accepts every call and
records nothing, so call sites need no conditionals.
*/
package metrics
