/*
Package config provides layered configuration for the s3pipe transfer
drivers.

Sources are applied in precedence order: compiled-in defaults, then a
YAML file, then environment variables, then command-line flags set by
the drivers themselves.

Configuration file format:

	global:
	  logging:
	    level: INFO
	    format: text
	    file: ""
	  metrics_port: 9090

	s3:
	  access_key: AKIA...
	  secret_key: ...
	  host: s3.amazonaws.com
	  https: true
	  walrus: false
	  timeout: 120s
	  connect_timeout: 30s

	transfer:
	  bucket: my-bucket
	  prefix: ""
	  pool_size: 8
	  concurrency: 8
	  part_size: 8MB
	  max_keys_per_batch: 1000

	retry:
	  max_attempts: 5
	  initial_delay: 100ms
	  max_delay: 30s

Environment variable mapping:

	AWS_ACCESS_KEY, AWS_SECRET_KEY, AWS_HOST, AWS_PROXY, AWS_BUCKET_NAME
	S3PIPE_LOG_LEVEL, S3PIPE_LOG_FILE, S3PIPE_METRICS_PORT
	S3PIPE_POOL_SIZE, S3PIPE_CONCURRENCY, S3PIPE_PART_SIZE
	S3PIPE_TIMEOUT, S3PIPE_WALRUS
*/
package config
