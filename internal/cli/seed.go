package cli

import (
	"fmt"

	"github.com/kiranshivaraju/logresolver/internal/ingest"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/spf13/cobra"
)

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Ingest a built-in set of demo DevOps failures",
		Long:  "Ingest a built-in set of demo DevOps failures (database timeouts, auth failures, disk exhaustion, gateway timeouts, memory pressure). Intended for demos and local testing only.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := a.client()
			recs := make([]*models.LogRecord, 0, len(demoLogs))
			for i, in := range demoLogs {
				rec, err := client.IngestStructured(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("seeding log %d/%d (%s): %w", i+1, len(demoLogs), in.ServiceName, err)
				}
				recs = append(recs, rec)
			}
			if a.output != formatText {
				return a.printer().structured(recs)
			}
			_, err := fmt.Fprintf(a.stdout, "seeded %d demo logs\n", len(recs))
			return err
		},
	}
}

var demoLogs = []ingest.StructuredLog{
	// Database
	{
		ServiceName:  "api-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Database connection timeout after 30 seconds. Unable to establish connection to postgresql://db-prod:5432/app_db",
		RawText:      "2024-01-15 14:23:45 ERROR [api-service] Database connection timeout after 30 seconds. Unable to establish connection to postgresql://db-prod:5432/app_db. Retry attempt 3/3 failed.",
		Metadata:     map[string]any{"environment": "production", "region": "us-east-1", "retry_count": 3},
	},
	{
		ServiceName:  "api-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Connection pool exhausted. All 50 connections are in use. Waiting for available connection...",
		RawText:      "2024-01-15 14:25:12 ERROR [api-service] Connection pool exhausted. All 50 connections are in use. Waiting for available connection... Request ID: req-abc123",
		Metadata:     map[string]any{"environment": "production", "pool_size": 50, "active_connections": 50},
	},
	{
		ServiceName:  "worker-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Database query timeout: SELECT * FROM orders WHERE status = 'pending' exceeded 10 second limit",
		RawText:      "2024-01-15 15:10:33 ERROR [worker-service] Database query timeout: SELECT * FROM orders WHERE status = 'pending' exceeded 10 second limit. Query cancelled.",
		Metadata:     map[string]any{"environment": "production", "query_timeout": 10, "table": "orders"},
	},
	// Authentication
	{
		ServiceName:  "auth-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Authentication failed: Invalid credentials for user admin@example.com. IP: 192.168.1.100",
		RawText:      "2024-01-15 16:45:22 ERROR [auth-service] Authentication failed: Invalid credentials for user admin@example.com. IP: 192.168.1.100. Attempt 5/5",
		Metadata:     map[string]any{"environment": "production", "attempts": 5},
	},
	{
		ServiceName:  "auth-service",
		ErrorLevel:   "WARN",
		ErrorMessage: "JWT token expired. Token issued at 2024-01-15T10:00:00Z, expired at 2024-01-15T11:00:00Z",
		RawText:      "2024-01-15 11:05:15 WARN [auth-service] JWT token expired. Token issued at 2024-01-15T10:00:00Z, expired at 2024-01-15T11:00:00Z. User ID: user-12345",
		Metadata:     map[string]any{"environment": "production", "token_type": "JWT"},
	},
	{
		ServiceName:  "api-gateway",
		ErrorLevel:   "ERROR",
		ErrorMessage: "OAuth2 token validation failed: Invalid signature. Token rejected.",
		RawText:      "2024-01-15 12:30:45 ERROR [api-gateway] OAuth2 token validation failed: Invalid signature. Token rejected. Request path: /api/v1/users",
		Metadata:     map[string]any{"environment": "production", "request_path": "/api/v1/users"},
	},
	// Disk
	{
		ServiceName:  "storage-service",
		ErrorLevel:   "CRITICAL",
		ErrorMessage: "Disk space exhausted. Available: 0 bytes (0%), Used: 500GB (100%). Mount point: /var/data",
		RawText:      "2024-01-15 18:20:10 CRITICAL [storage-service] Disk space exhausted. Available: 0 bytes (0%), Used: 500GB (100%). Mount point: /var/data. Service may become unavailable.",
		Metadata:     map[string]any{"environment": "production", "mount_point": "/var/data"},
	},
	{
		ServiceName:  "log-aggregator",
		ErrorLevel:   "WARN",
		ErrorMessage: "Low disk space warning: Only 5GB (1%) remaining on /var/logs. Consider log rotation or cleanup.",
		RawText:      "2024-01-15 19:15:30 WARN [log-aggregator] Low disk space warning: Only 5GB (1%) remaining on /var/logs. Consider log rotation or cleanup. Current log size: 495GB",
		Metadata:     map[string]any{"environment": "production", "mount_point": "/var/logs", "usage_percent": 99},
	},
	{
		ServiceName:  "backup-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Backup failed: Insufficient disk space. Required: 100GB, Available: 10GB",
		RawText:      "2024-01-15 20:00:00 ERROR [backup-service] Backup failed: Insufficient disk space. Required: 100GB, Available: 10GB. Backup job: daily-backup-2024-01-15",
		Metadata:     map[string]any{"environment": "production", "backup_job": "daily-backup-2024-01-15"},
	},
	// Gateway
	{
		ServiceName:  "api-gateway",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Upstream service timeout: api-service did not respond within 30 seconds. Request ID: req-xyz789",
		RawText:      "2024-01-15 21:30:15 ERROR [api-gateway] Upstream service timeout: api-service did not respond within 30 seconds. Request ID: req-xyz789. Path: /api/v1/orders",
		Metadata:     map[string]any{"environment": "production", "upstream_service": "api-service", "timeout": 30},
	},
	{
		ServiceName:  "api-gateway",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Circuit breaker opened for payment-service after 5 consecutive failures. Requests will be rejected for 60 seconds.",
		RawText:      "2024-01-15 22:15:45 ERROR [api-gateway] Circuit breaker opened for payment-service after 5 consecutive failures. Requests will be rejected for 60 seconds. Last error: Connection refused",
		Metadata:     map[string]any{"environment": "production", "upstream_service": "payment-service", "circuit_breaker_state": "open"},
	},
	{
		ServiceName:  "load-balancer",
		ErrorLevel:   "WARN",
		ErrorMessage: "High latency detected: Average response time 2.5s exceeds threshold of 1.0s for api-service",
		RawText:      "2024-01-15 23:00:30 WARN [load-balancer] High latency detected: Average response time 2.5s exceeds threshold of 1.0s for api-service. Active connections: 150",
		Metadata:     map[string]any{"environment": "production", "avg_latency": "2.5s"},
	},
	// Memory
	{
		ServiceName:  "api-service",
		ErrorLevel:   "WARN",
		ErrorMessage: "High memory usage: 4.5GB / 5GB (90%). Consider scaling or optimizing memory usage.",
		RawText:      "2024-01-16 00:30:20 WARN [api-service] High memory usage: 4.5GB / 5GB (90%). Consider scaling or optimizing memory usage. Heap size: 3.2GB",
		Metadata:     map[string]any{"environment": "production", "usage_percent": 90},
	},
	{
		ServiceName:  "worker-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Out of memory error: Unable to allocate 512MB for task processing. Process terminated.",
		RawText:      "2024-01-16 01:15:55 ERROR [worker-service] Out of memory error: Unable to allocate 512MB for task processing. Process terminated. Task ID: task-456",
		Metadata:     map[string]any{"environment": "production", "task_id": "task-456"},
	},
	{
		ServiceName:  "cache-service",
		ErrorLevel:   "WARN",
		ErrorMessage: "Memory cache eviction rate high: 1000 evictions/second. Cache hit rate dropped to 60%",
		RawText:      "2024-01-16 02:00:10 WARN [cache-service] Memory cache eviction rate high: 1000 evictions/second. Cache hit rate dropped to 60%. Cache size: 2GB / 2GB",
		Metadata:     map[string]any{"environment": "production", "hit_rate": "60%"},
	},
	// Other
	{
		ServiceName:  "scheduler-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Scheduled job failed: daily-report-generation. Error: FileNotFoundError: /reports/template.xlsx not found",
		RawText:      "2024-01-16 03:00:00 ERROR [scheduler-service] Scheduled job failed: daily-report-generation. Error: FileNotFoundError: /reports/template.xlsx not found. Retry scheduled in 1 hour.",
		Metadata:     map[string]any{"environment": "production", "job_name": "daily-report-generation"},
	},
	{
		ServiceName:  "notification-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Failed to send email notification: SMTP server unreachable. smtp.example.com:587 connection refused",
		RawText:      "2024-01-16 04:30:45 ERROR [notification-service] Failed to send email notification: SMTP server unreachable. smtp.example.com:587 connection refused. Retry attempt 2/3",
		Metadata:     map[string]any{"environment": "production", "smtp_server": "smtp.example.com:587"},
	},
	{
		ServiceName:  "api-service",
		ErrorLevel:   "ERROR",
		ErrorMessage: "Rate limit exceeded: 1000 requests per minute limit reached. Client IP: 203.0.113.42",
		RawText:      "2024-01-16 05:15:20 ERROR [api-service] Rate limit exceeded: 1000 requests per minute limit reached. Client IP: 203.0.113.42. Retry after: 60 seconds",
		Metadata:     map[string]any{"environment": "production", "retry_after": 60},
	},
}
